// Package amortization builds loan installment plans.
//
// Build is the single entry point used by every origination path (manual creation,
// bulk import and preview). All functions are pure: they read only their arguments,
// never the wall clock, and are safe for concurrent use.
package amortization

import (
	"fmt"
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
)

// civilDate strips the time-of-day and location, keeping the calendar date the caller sees
func civilDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// lastDayOfMonth returns the number of days in the given month
func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// monthAnchor returns the first day of the month that is `months` calendar months after t.
// Only year and month are carried over so day overflow never shifts the target month.
func monthAnchor(t time.Time, months int) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
}

// ResolveDueDate returns the concrete date for targetDay in anchor's month.
//
// Under DueDayRuleClampToMonthEnd a day past the end of the month becomes the last day.
// Under DueDayRuleStrict it is a calendar overflow: the date is never rolled into the next month.
func ResolveDueDate(anchor time.Time, targetDay int, rule domain.DueDayRule) (time.Time, error) {
	year, month, _ := anchor.Date()
	lastDay := lastDayOfMonth(year, month)

	day := targetDay
	if day > lastDay {
		if rule != domain.DueDayRuleClampToMonthEnd {
			return time.Time{}, fmt.Errorf("%w: day %d in %04d-%02d", domain.ErrCalendarOverflow, targetDay, year, int(month))
		}
		day = lastDay
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
