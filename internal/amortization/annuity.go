package amortization

import (
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// internalPrecision is the number of decimal places kept between periods.
// Money is rounded to 2 places only when an installment is emitted.
const internalPrecision = 18

// MonthlyRate converts a percentage rate (9.58 means 9.58%) to a fraction
func MonthlyRate(monthlyRatePercent decimal.Decimal) decimal.Decimal {
	return monthlyRatePercent.Div(hundred)
}

// LevelPayment returns the unrounded constant gross payment that amortizes financedBase over n periods.
//
//	payment = base * ((1+i)^n * i) / ((1+i)^n - 1)
//
// A zero rate falls back to a straight-line split instead of dividing by zero.
func LevelPayment(financedBase decimal.Decimal, n int, rate decimal.Decimal) decimal.Decimal {
	periods := decimal.NewFromInt(int64(n))
	if rate.IsZero() {
		return financedBase.DivRound(periods, internalPrecision)
	}

	factor := one.Add(rate).Pow(periods).Round(internalPrecision)
	return financedBase.Mul(factor.Mul(rate)).DivRound(factor.Sub(one), internalPrecision)
}

// DueDates returns the n due dates of a plan starting at firstDueDate
func DueDates(firstDueDate time.Time, n int, dueDay int, rule domain.DueDayRule) ([]time.Time, error) {
	dates := make([]time.Time, n)
	dates[0] = civilDate(firstDueDate)
	for k := 1; k < n; k++ {
		date, err := ResolveDueDate(monthAnchor(firstDueDate, k), dueDay, rule)
		if err != nil {
			return nil, err
		}
		dates[k] = date
	}
	return dates, nil
}

// BuildInstallments walks the amortization table period by period.
//
// stubInterest is added to installment 1 only. The final installment's principal is the
// remaining outstanding balance so the sum of principal portions equals financedBase.
// Callers validate n and financedBase; all due dates are resolved before any row is built.
func BuildInstallments(
	financedBase decimal.Decimal,
	installmentCount int,
	monthlyRatePercent decimal.Decimal,
	firstDueDate time.Time,
	dueDay int,
	rule domain.DueDayRule,
	stubInterest decimal.Decimal,
) ([]domain.Installment, error) {
	dates, err := DueDates(firstDueDate, installmentCount, dueDay, rule)
	if err != nil {
		return nil, err
	}

	rate := MonthlyRate(monthlyRatePercent)
	level := LevelPayment(financedBase, installmentCount, rate)

	installments := make([]domain.Installment, installmentCount)
	outstanding := financedBase
	last := installmentCount - 1

	for k := 0; k < installmentCount; k++ {
		periodInterest := outstanding.Mul(rate)

		interest := periodInterest
		gross := level
		if k == 0 {
			interest = interest.Add(stubInterest)
			gross = gross.Add(stubInterest)
		}

		var principal decimal.Decimal
		if k == last {
			principal = outstanding.Round(2)
		} else {
			principal = level.Sub(periodInterest).Round(2)
		}
		if rate.IsZero() {
			// Straight line: gross is the principal, so the last one carries the cent remainder
			gross = principal
		}

		installments[k] = domain.Installment{
			SequenceNumber:   k + 1,
			DueDate:          dates[k],
			PrincipalPortion: principal,
			InterestPortion:  interest.Round(2),
			GrossAmount:      gross.Round(2),
		}

		outstanding = outstanding.Sub(principal)
	}

	return installments, nil
}
