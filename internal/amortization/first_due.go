package amortization

import (
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
)

// MidMonthCutoffDay is the last origination day whose first installment falls one month out
const MidMonthCutoffDay = 15

// FirstDueMonthOffset returns how many calendar months after origination the first installment falls.
// Loans disbursed after the 15th get an extra month so there is always a float period before the first collection.
func FirstDueMonthOffset(originationDate time.Time) int {
	if originationDate.Day() > MidMonthCutoffDay {
		return 2
	}
	return 1
}

// SelectFirstDueDate returns the due date of installment 1
func SelectFirstDueDate(originationDate time.Time, dueDay int, rule domain.DueDayRule) (time.Time, error) {
	anchor := monthAnchor(originationDate, FirstDueMonthOffset(originationDate))
	return ResolveDueDate(anchor, dueDay, rule)
}
