package classify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode controls how an averaged feedback score becomes a success flag.
type RoundingMode string

const (
	RoundTruncate RoundingMode = "truncate"
	RoundHalfEven RoundingMode = "half_even"
	RoundHalfUp   RoundingMode = "half_up"
)

func ParseRoundingMode(raw string) (RoundingMode, error) {
	switch m := RoundingMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return RoundTruncate, nil
	case RoundTruncate, RoundHalfEven, RoundHalfUp:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported rounding mode %q (truncate|half_even|half_up)", raw)
	}
}

// successFromScore reports whether score rounds to a non-zero integer.
func successFromScore(score float64, mode RoundingMode) bool {
	d := decimal.NewFromFloat(score)
	switch mode {
	case RoundHalfEven:
		d = d.RoundBank(0)
	case RoundHalfUp:
		d = d.Round(0)
	default:
		d = d.Truncate(0)
	}
	return !d.IsZero()
}
