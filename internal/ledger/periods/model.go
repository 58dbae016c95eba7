package periods

import "time"

// PeriodLock is the per-calendar-month lock row. Absence of a row for a
// month means the month is not locked.
type PeriodLock struct {
	PeriodMonth time.Time
	IsLocked    bool
	Note        string
	UpdatedAt   time.Time
}

// FirstOfMonth truncates a date to the first day of its calendar month.
func FirstOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// LastOfMonth returns the last calendar day of the month containing d.
func LastOfMonth(d time.Time) time.Time {
	return FirstOfMonth(d).AddDate(0, 1, -1)
}
