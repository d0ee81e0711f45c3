// Package fraction parses and formats lengths written the way people measure
// them: decimals ("2.375") or mixed fractions ("2 3/8", "-1 1/16").
package fraction

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrEmpty           = errors.New("fraction: empty input")
	ErrSyntax          = errors.New("fraction: invalid number")
	ErrZeroDenominator = errors.New("fraction: zero denominator")
	ErrNotInteger      = errors.New("fraction: not a safe integer")
)

// maxSafeInteger is the largest integer a float64 holds exactly.
const maxSafeInteger = 1<<53 - 1

var reFraction = regexp.MustCompile(`^ *(-)?(\d+ +)?(\d+) *\/ *(\d+) *$`)

// Parse reads a mixed fraction or a plain decimal. Blank input, NaN and
// infinities are rejected.
func Parse(s string) (float64, error) {
	m := reFraction.FindStringSubmatch(s)
	if m == nil {
		return ParseFloat(s)
	}

	var whole float64
	if w := strings.TrimSpace(m[2]); w != "" {
		v, err := ParseInt(w)
		if err != nil {
			return 0, err
		}
		whole = v
	}
	num, err := ParseInt(m[3])
	if err != nil {
		return 0, err
	}
	den, err := ParseInt(m[4])
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, fmt.Errorf("%w: %q", ErrZeroDenominator, s)
	}
	sign := 1.0
	if m[1] == "-" {
		sign = -1
	}
	return sign * (whole + num/den), nil
}

// ParseFloat parses a finite decimal number, ignoring surrounding spaces.
func ParseFloat(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, ErrEmpty
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return v, nil
}

// ParseInt parses a finite integer that a float64 represents exactly.
func ParseInt(s string) (float64, error) {
	v, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if v > maxSafeInteger || v < -maxSafeInteger || v != math.Floor(v) {
		return 0, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	return v, nil
}
