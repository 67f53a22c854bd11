package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in keys and records.
const DateLayout = "2006-01-02"

// MaxBlockTimestamp is 9999-12-31T23:59:59Z, the last second whose date
// still fits DateLayout.
const MaxBlockTimestamp uint64 = 253402300799

// DateOf returns the UTC calendar date of a unix timestamp.
func DateOf(unix uint64) string {
	return time.Unix(int64(unix), 0).UTC().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:  "date",
			Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", date),
		}
	}
	return t, nil
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}
