package checkdef

import (
	"errors"
	"fmt"
)

// Period selects the trailing reporting window of a check.
type Period string

// Recognized period selectors.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

const (
	secondsPerDay   = 86400
	secondsPerWeek  = 604800
	secondsPerMonth = 2592000
)

// ErrInvalidPeriod reports an unrecognized period selector.
var ErrInvalidPeriod = errors.New("period must be one of day, week, month")

// ParsePeriod validates a period selector.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidPeriod)
}

// Seconds returns the window length in seconds.
func (p Period) Seconds() int64 {
	switch p {
	case PeriodDay:
		return secondsPerDay
	case PeriodWeek:
		return secondsPerWeek
	case PeriodMonth:
		return secondsPerMonth
	}
	return 0
}
