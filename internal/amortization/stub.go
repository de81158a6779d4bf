package amortization

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedPeriodDays is the length of one normal period already covered by the annuity
const NormalizedPeriodDays = 30

var (
	one        = decimal.NewFromInt(1)
	twelve     = decimal.NewFromInt(12)
	thirty     = decimal.NewFromInt(NormalizedPeriodDays)
	hundred    = decimal.NewFromInt(100)
	threeSixty = decimal.NewFromInt(360)
)

// civilDaysBetween counts calendar days from one date to another, ignoring time of day
func civilDaysBetween(from, to time.Time) int {
	return int(math.Round(civilDate(to).Sub(civilDate(from)).Hours() / 24))
}

// StubExtraDays returns the days of the first period beyond one normalized 30-day period.
// One day is subtracted from the raw gap because both endpoints are counted elsewhere.
func StubExtraDays(originationDate, firstDueDate time.Time) int {
	daysBetween := max(0, civilDaysBetween(originationDate, firstDueDate)-1)
	return max(0, daysBetween-NormalizedPeriodDays)
}

// ProrateStubInterest computes the extra interest charged on installment 1 for a long first period.
// A first period of 30 days or fewer yields zero.
func ProrateStubInterest(originationDate, firstDueDate time.Time, monthlyRatePercent, financedBase decimal.Decimal) decimal.Decimal {
	extraDays := StubExtraDays(originationDate, firstDueDate)
	if extraDays == 0 {
		return decimal.Zero
	}

	// ACT/360 normalization of the monthly rate
	annualRate := monthlyRatePercent.Mul(twelve)
	normalizedMonthlyRate := annualRate.Mul(thirty).Div(threeSixty)
	ratePercentForExtraDays := normalizedMonthlyRate.
		Div(thirty).
		Mul(decimal.NewFromInt(int64(extraDays))).
		Round(4)

	return financedBase.Mul(ratePercentForExtraDays).Div(hundred).Round(2)
}
