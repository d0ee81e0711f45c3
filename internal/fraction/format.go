package fraction

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Style picks between decimal and fractional rendering.
type Style int

const (
	Fixed Style = iota
	Fractional
)

func (s Style) String() string {
	if s == Fractional {
		return "fraction"
	}
	return "fixed"
}

// ParseStyle accepts "fixed"/"decimal" and "fraction"/"fractional".
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed", "decimal":
		return Fixed, nil
	case "fraction", "fractional":
		return Fractional, nil
	default:
		return Fixed, fmt.Errorf("unknown notation %q (use fixed or fraction)", s)
	}
}

// Notation controls Format.
//
// Digits applies to Fixed, Denominator to Fractional (rounded to the nearest
// 1/Denominator). Zero values fall back to 3 digits and sixteenths.
type Notation struct {
	Style       Style
	Digits      int
	Denominator int
}

const (
	defaultDigits      = 3
	defaultDenominator = 16
)

func (n Notation) digits() int {
	if n.Digits <= 0 {
		return defaultDigits
	}
	return n.Digits
}

func (n Notation) denominator() int {
	if n.Denominator <= 0 {
		return defaultDenominator
	}
	return n.Denominator
}

// Format renders v in the requested notation.
func Format(v float64, n Notation) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	if n.Style == Fractional {
		return formatFraction(v, n.denominator())
	}
	return formatFixed(v, n.digits())
}

// Exact reports whether Format(v, n) loses no precision beyond float rounding.
func Exact(v float64, n Notation) bool {
	if n.Style != Fractional {
		return true
	}
	den := float64(n.denominator())
	scaled := v * den
	return math.Abs(scaled-math.Round(scaled)) < 1e-9
}

func formatFixed(v float64, digits int) string {
	s := strconv.FormatFloat(v, 'f', digits, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// maxExact is the largest magnitude whose scaled value still fits an int64
// without losing integer precision.
const maxExact = 1 << 53

func formatFraction(v float64, den int) string {
	scaled := math.Round(math.Abs(v) * float64(den))
	if scaled >= maxExact {
		return formatFixed(v, 0)
	}
	n := int64(scaled)
	if n == 0 {
		return "0"
	}
	d := int64(den)
	whole, num := n/d, n%d
	if g := gcd(num, d); g > 1 {
		num /= g
		d /= g
	}

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	switch {
	case num == 0:
		b.WriteString(strconv.FormatInt(whole, 10))
	case whole == 0:
		fmt.Fprintf(&b, "%d/%d", num, d)
	default:
		fmt.Fprintf(&b, "%d %d/%d", whole, num, d)
	}
	return b.String()
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
