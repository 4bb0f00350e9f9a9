package partnerapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCentsFromDecimal(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"12.34", 1234, true},
		{"0", 0, true},
		{"0.005", 1, true}, // rounds half away from zero
		{"-0.50", -50, true},
		{"-123.456", -12346, true},
		{"1999", 199900, true},
		{" 3.50 ", 350, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"12,34", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		cents, ok := CentsFromDecimal(tt.in)
		assert.Equal(t, tt.cents, cents, "CentsFromDecimal(%q)", tt.in)
		assert.Equal(t, tt.ok, ok, "CentsFromDecimal(%q) ok", tt.in)
	}
}

func TestRevenueCents(t *testing.T) {
	// Mangled revenue counts as zero rather than failing the date.
	if got := RevenueCents("garbage"); got != 0 {
		t.Errorf("RevenueCents(garbage) = %d, want 0", got)
	}
	if got := RevenueCents("19.98"); got != 1998 {
		t.Errorf("RevenueCents(19.98) = %d, want 1998", got)
	}
}

func TestPriceCents(t *testing.T) {
	if got := PriceCents("garbage"); got != nil {
		t.Errorf("PriceCents(garbage) = %v, want nil", got)
	}
	got := PriceCents("0.00")
	if got == nil || *got != 0 {
		t.Errorf("PriceCents(0.00) = %v, want 0 (zero price is not absent)", got)
	}
}

func TestFlexNumbers(t *testing.T) {
	var page SalesPage
	data := []byte(`{"max_id": "250", "results": [{"appid": "440", "gross_units_sold": 1}]}`)
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if uint64(page.MaxID) != 250 {
		t.Errorf("MaxID = %d, want 250", page.MaxID)
	}
	if page.Results[0].AppID == nil || int64(*page.Results[0].AppID) != 440 {
		t.Errorf("AppID = %v, want 440", page.Results[0].AppID)
	}
}
