package perspective

import (
	"errors"
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAtEndpoints(t *testing.T) {
	t.Parallel()
	in := Input{Far: 4, Near: 12}
	if p := At(in, 0); !near(p.Distance, 12) || !near(p.FromNear, 0) {
		t.Fatalf("At(0) = %+v", p)
	}
	if p := At(in, 1); !near(p.Distance, 4) || !near(p.FromNear, 8) {
		t.Fatalf("At(1) = %+v", p)
	}
}

func TestAtMidpointIsHarmonic(t *testing.T) {
	t.Parallel()
	// Halfway in the world is 2ab/(a+b) on paper: 2*4*12/16 = 6.
	p := At(Input{Far: 4, Near: 12}, 0.5)
	if !near(p.Distance, 6) {
		t.Fatalf("midpoint distance = %v, want 6", p.Distance)
	}
	if !near(p.FromNear, 6) {
		t.Fatalf("midpoint FromNear = %v, want 6", p.FromNear)
	}
}

func TestEqualDistancesAreLinear(t *testing.T) {
	t.Parallel()
	p := At(Input{Far: 5, Near: 5}, 0.3)
	if !near(p.Distance, 5) || !near(p.FromNear, 0) {
		t.Fatalf("At = %+v", p)
	}
}

func TestTableMarksRequestedRow(t *testing.T) {
	t.Parallel()
	rows, err := Table(Input{Far: 4, Near: 12, Progress: 0.5, Steps: 4})
	if err != nil {
		t.Fatalf("Table error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if !rows[2].Requested || rows[1].Requested {
		t.Fatalf("requested row not marked: %+v", rows)
	}
}

func TestTableInsertsOffGridProgress(t *testing.T) {
	t.Parallel()
	rows, err := Table(Input{Far: 4, Near: 12, Progress: 0.3, Steps: 2})
	if err != nil {
		t.Fatalf("Table error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if !rows[1].Requested || !near(rows[1].Progress, 0.3) {
		t.Fatalf("row 1 = %+v", rows[1])
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Progress < rows[i-1].Progress {
			t.Fatal("rows not ordered by progress")
		}
		if rows[i].Distance > rows[i-1].Distance {
			t.Fatal("distance must shrink toward the far line")
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	bad := []Input{
		{Far: 0, Near: 1},
		{Far: 1, Near: -2},
		{Far: math.NaN(), Near: 1},
		{Far: 1, Near: math.Inf(1)},
		{Far: 1, Near: 1, Progress: 1.5},
		{Far: 1, Near: 1, Progress: math.NaN()},
		{Far: 1, Near: 1, Steps: MaxSteps + 1},
	}
	for _, in := range bad {
		if err := in.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestCalculatorCaches(t *testing.T) {
	t.Parallel()
	c, err := NewCalculator(4)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	in := Input{Far: 3, Near: 9, Progress: 0.25, Steps: 8}
	if _, err := c.Table(in); err != nil {
		t.Fatalf("Table: %v", err)
	}
	if _, err := c.Table(in); err != nil {
		t.Fatalf("Table: %v", err)
	}
	if c.Hits() != 1 || c.Misses() != 1 {
		t.Fatalf("hits=%d misses=%d", c.Hits(), c.Misses())
	}
	if _, err := c.Table(Input{Far: -1, Near: 1}); err == nil {
		t.Fatal("expected validation error")
	}
}
