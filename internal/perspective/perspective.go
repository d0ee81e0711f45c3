// Package perspective places evenly spaced real-world positions between two
// parallel lines drawn in one-point perspective.
//
// Distances are measured on paper from the vanishing point to each line. A
// line at depth z sits at a paper distance proportional to 1/z, so the point
// a fraction p of the way from the near line to the far line (in the real
// world) lies at the harmonic interpolation of the two paper distances.
package perspective

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// MaxSteps bounds the number of table rows.
const MaxSteps = 1000

var ErrInvalidInput = errors.New("perspective: invalid input")

// Input describes the drawing.
type Input struct {
	// Far and Near are paper distances from the vanishing point to each line.
	Far  float64
	Near float64
	// Progress is the real-world fraction from the near line (0) to the far line (1).
	Progress float64
	// Steps is the number of equal real-world intervals in the table.
	Steps int
}

func (in Input) Validate() error {
	switch {
	case !(in.Far > 0) || math.IsInf(in.Far, 0):
		return fmt.Errorf("%w: far distance must be > 0 (got %v)", ErrInvalidInput, in.Far)
	case !(in.Near > 0) || math.IsInf(in.Near, 0):
		return fmt.Errorf("%w: near distance must be > 0 (got %v)", ErrInvalidInput, in.Near)
	case !(in.Progress >= 0 && in.Progress <= 1):
		return fmt.Errorf("%w: progress must be within [0, 1] (got %v)", ErrInvalidInput, in.Progress)
	case in.Steps < 0 || in.Steps > MaxSteps:
		return fmt.Errorf("%w: steps must be within [0, %d] (got %d)", ErrInvalidInput, MaxSteps, in.Steps)
	}
	return nil
}

// Point is one row of the result.
type Point struct {
	Progress float64
	// Distance from the vanishing point.
	Distance float64
	// FromNear is the paper distance measured from the near line toward the far line.
	FromNear float64
	// Requested marks the row for Input.Progress.
	Requested bool
}

// At computes the point at real-world fraction p. The input is not validated.
func At(in Input, p float64) Point {
	d := 1 / ((1-p)/in.Near + p/in.Far)
	return Point{Progress: p, Distance: d, FromNear: in.Near - d}
}

// Table returns Steps+1 evenly spaced rows from near (0) to far (1) plus the
// requested progress, ordered by progress. When the requested progress falls
// on a grid row, that row is marked instead of duplicated.
func Table(in Input) ([]Point, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rows := make([]Point, 0, in.Steps+2)
	found := false
	if in.Steps == 0 {
		rows = append(rows, At(in, in.Progress))
		rows[0].Requested = true
		return rows, nil
	}
	for i := 0; i <= in.Steps; i++ {
		p := float64(i) / float64(in.Steps)
		pt := At(in, p)
		if !found && math.Abs(p-in.Progress) < 1e-12 {
			pt.Requested = true
			found = true
		}
		rows = append(rows, pt)
	}
	if !found {
		pt := At(in, in.Progress)
		pt.Requested = true
		rows = append(rows, pt)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Progress < rows[j].Progress })
	}
	return rows, nil
}
