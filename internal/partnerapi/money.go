package partnerapi

import (
	"math"
	"strconv"
	"strings"
)

// CentsFromDecimal parses a decimal money string ("12.34", "-0.50") into
// integer cents, rounding half away from zero. Returns false for anything
// that does not parse as a number.
func CentsFromDecimal(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}

// RevenueCents parses a revenue field. Unparseable revenue counts as zero so
// a single mangled line item never sinks the whole date.
func RevenueCents(s string) int64 {
	cents, _ := CentsFromDecimal(s)
	return cents
}

// PriceCents parses an optional price field. Unparseable prices stay NULL;
// unlike revenue, a price of zero and an absent price mean different things.
func PriceCents(s string) *int64 {
	cents, ok := CentsFromDecimal(s)
	if !ok {
		return nil
	}
	return &cents
}
