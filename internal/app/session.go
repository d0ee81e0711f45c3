package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"drafter/internal/config"
	"drafter/internal/fraction"
	"drafter/internal/perspective"
	"drafter/internal/storage"
)

// Fields accepted by Set.
const (
	FieldFar      = "far"
	FieldNear     = "near"
	FieldProgress = "progress"
	FieldSteps    = "steps"
	FieldNotation = "notation"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrStopped      = errors.New("app stopped")
)

// Session is the user's current input. Far, Near and Progress are kept as
// typed, so half-written values like "3 1/" survive until the next keystroke.
type Session struct {
	Far      string `json:"far"`
	Near     string `json:"near"`
	Progress string `json:"progress"`
	Steps    int    `json:"steps"`

	Notation fraction.Notation `json:"-"`
}

// Input parses the session. Errors for every bad field are joined.
func (s Session) Input() (perspective.Input, error) {
	var errs []error
	parse := func(name, raw string) float64 {
		v, err := fraction.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	in := perspective.Input{
		Far:      parse(FieldFar, s.Far),
		Near:     parse(FieldNear, s.Near),
		Progress: parse(FieldProgress, s.Progress),
		Steps:    s.Steps,
	}
	if len(errs) > 0 {
		return perspective.Input{}, errors.Join(errs...)
	}
	if err := in.Validate(); err != nil {
		return perspective.Input{}, err
	}
	return in, nil
}

func sessionFromConfig(d config.DraftingConfig) (Session, error) {
	n, err := d.NotationOf()
	if err != nil {
		return Session{}, err
	}
	return Session{
		Far:      d.Far,
		Near:     d.Near,
		Progress: d.Progress,
		Steps:    d.Steps,
		Notation: n,
	}, nil
}

func (s Session) stored() storage.Session {
	return storage.Session{
		Far:      s.Far,
		Near:     s.Near,
		Progress: s.Progress,
		Steps:    s.Steps,
		Notation: s.Notation.Style.String(),
	}
}

// restore overlays a saved session. Digits and denominator stay as configured.
func (s Session) restore(st storage.Session) Session {
	s.Far, s.Near, s.Progress = st.Far, st.Near, st.Progress
	if st.Steps >= 0 && st.Steps <= perspective.MaxSteps {
		s.Steps = st.Steps
	}
	if style, err := fraction.ParseStyle(st.Notation); err == nil {
		s.Notation.Style = style
	}
	return s
}

// apply returns the session with field set to raw.
func (s Session) apply(field, raw string) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldFar:
		s.Far = raw
	case FieldNear:
		s.Near = raw
	case FieldProgress:
		s.Progress = raw
	case FieldSteps:
		v, err := fraction.ParseInt(raw)
		if err != nil {
			return s, fmt.Errorf("steps: %w", err)
		}
		if v < 0 || v > perspective.MaxSteps {
			return s, fmt.Errorf("steps: must be within [0, %d]", perspective.MaxSteps)
		}
		s.Steps = int(v)
	case FieldNotation:
		style, err := fraction.ParseStyle(raw)
		if err != nil {
			return s, err
		}
		s.Notation.Style = style
	default:
		return s, fmt.Errorf("%w %q", ErrUnknownField, field)
	}
	return s, nil
}

// Row is one formatted table row.
type Row struct {
	Progress  string `json:"progress"`
	Distance  string `json:"distance"`
	FromNear  string `json:"from_near"`
	Requested bool   `json:"requested,omitempty"`

	Point perspective.Point `json:"-"`
}

// Result is the outcome of one recompute.
type Result struct {
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Session Session   `json:"session"`
	Rows    []Row     `json:"rows,omitempty"`
	Err     error     `json:"-"`
}

// Requested returns the row for the session's progress.
func (r Result) Requested() (Row, bool) {
	for _, row := range r.Rows {
		if row.Requested {
			return row, true
		}
	}
	return Row{}, false
}

func formatRows(points []perspective.Point, n fraction.Notation) []Row {
	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{
			Progress:  formatProgress(p.Progress),
			Distance:  fraction.Format(p.Distance, n),
			FromNear:  fraction.Format(p.FromNear, n),
			Requested: p.Requested,
			Point:     p,
		}
	}
	return rows
}

// formatProgress prints progress as a percentage with at most one decimal.
func formatProgress(p float64) string {
	pct := math.Round(p*1000) / 10
	return fraction.Format(pct, fraction.Notation{Style: fraction.Fixed, Digits: 1}) + "%"
}

// TableHeaders label the columns of TableRows.
var TableHeaders = []string{"", "progress", "distance", "from near"}

// TableRows returns the rows as display cells; the requested row is starred.
func (r Result) TableRows() [][]string {
	out := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		mark := ""
		if row.Requested {
			mark = "*"
		}
		out = append(out, []string{mark, row.Progress, row.Distance, row.FromNear})
	}
	return out
}
