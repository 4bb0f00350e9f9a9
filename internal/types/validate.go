package types

import (
	"fmt"
	"time"
)

// DateFormat is the calendar-date layout used throughout the store and the
// partner API.
const DateFormat = "2006-01-02"

// ValidateDate checks that s is a well-formed YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if len(s) != len(DateFormat) {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	if _, err := time.Parse(DateFormat, s); err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	return nil
}
