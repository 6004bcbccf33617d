// Package money holds the price parsing/formatting rules shared by the
// price cell renderer and the price field controller, so the display value
// and the canonical submission value can never drift apart.
package money

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultTag is the locale used when the host configures none. Grouped-space
// formatting ("1 235") is the admin-panel convention this toolkit ships.
var DefaultTag = language.Russian

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	shift := math.Pow(10, float64(precision))
	return math.Round(v*shift) / shift
}

// Canonical renders the submission-ready numeric string: rounded to
// precision, plain ASCII digits, '.' decimal mark, no grouping.
func Canonical(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return strconv.FormatFloat(Round(v, precision), 'f', precision, 64)
}

// Format renders the human display value with locale grouping, rounded to
// precision.
func Format(v float64, precision int, tag language.Tag) string {
	if precision < 0 {
		precision = 0
	}
	if tag == (language.Tag{}) {
		tag = DefaultTag
	}
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(Round(v, precision),
		number.MaxFractionDigits(precision),
	))
}

// Parse extracts a numeric value from free-form masked input. Every
// character except digits, the minus sign and separator marks is stripped.
// When both '.' and ',' occur, the later one is the decimal mark; a
// separator that repeats is grouping; a single trailing separator is the
// decimal mark. Returns false when no digits remain.
func Parse(raw string) (float64, bool) {
	var digits []rune
	lastDot, lastComma := -1, -1
	dots, commas := 0, 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, r)
		case r == '-':
			if len(digits) == 0 {
				digits = append(digits, r)
			}
		case r == '.':
			dots++
			lastDot = len(digits)
			digits = append(digits, r)
		case r == ',':
			commas++
			lastComma = len(digits)
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return 0, false
	}

	decimalAt := -1
	switch {
	case dots > 0 && commas > 0:
		if lastDot > lastComma {
			decimalAt = lastDot
		} else {
			decimalAt = lastComma
		}
	case dots == 1:
		decimalAt = lastDot
	case commas == 1:
		decimalAt = lastComma
	}

	var b strings.Builder
	for i, r := range digits {
		switch r {
		case '.', ',':
			if i == decimalAt {
				b.WriteByte('.')
			}
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." || cleaned == "-." {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAny accepts the value shapes items carry for price fields: numbers
// directly, strings through Parse.
func ParseAny(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		return Parse(v)
	default:
		return 0, false
	}
}
