package order

import (
	"fmt"
	"time"
)

const dateKeyLayout = "2006-01-02"

// DateKey addresses a sub-order within an order: the calendar date of the
// delivery in the marketplace time zone.
type DateKey string

// DateKeyOf derives the date key for a delivery timestamp.
// A nil location means UTC.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	if loc == nil {
		loc = time.UTC
	}
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// ParseDateKey validates a date key string.
func ParseDateKey(s string) (DateKey, error) {
	if _, err := time.Parse(dateKeyLayout, s); err != nil {
		return "", fmt.Errorf("invalid date key %q: %w", s, err)
	}
	return DateKey(s), nil
}
