package amortization

import (
	"errors"
	"testing"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelPayment_ZeroRateIsStraightLine(t *testing.T) {
	got := LevelPayment(decimal.NewFromInt(1200), 12, decimal.Zero)
	assert.True(t, decimal.NewFromInt(100).Equal(got), "got %s", got)
}

func TestLevelPayment_SinglePeriod(t *testing.T) {
	// One period: the whole base plus one period of interest
	got := LevelPayment(decimal.NewFromInt(1000), 1, decimal.RequireFromString("0.05"))
	assert.True(t, decimal.NewFromInt(1050).Equal(got.Round(2)), "got %s", got)
}

func TestLevelPayment_Annuity(t *testing.T) {
	got := LevelPayment(decimal.RequireFromString("107816.71"), 6, decimal.RequireFromString("0.0958"))
	assert.Equal(t, "24451.60", got.StringFixed(2))
}

func TestDueDates_OneMonthApartWithClamp(t *testing.T) {
	dates, err := DueDates(date(2024, 1, 31), 5, 31, domain.DueDayRuleClampToMonthEnd)
	require.NoError(t, err)

	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"}
	got := make([]string, len(dates))
	for i, d := range dates {
		got[i] = d.Format("2006-01-02")
	}
	assert.Equal(t, want, got)
}

func TestDueDates_StrictOverflowFailsWholeSchedule(t *testing.T) {
	dates, err := DueDates(date(2024, 1, 30), 3, 30, domain.DueDayRuleStrict)
	assert.True(t, errors.Is(err, domain.ErrCalendarOverflow))
	assert.Nil(t, dates)
}

func TestBuildInstallments_LastInstallmentClosesBalance(t *testing.T) {
	base := decimal.NewFromInt(1000)
	installments, err := BuildInstallments(base, 3, decimal.Zero, date(2024, 4, 5), 5, domain.DueDayRuleClampToMonthEnd, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.Equal(t, "333.33", installments[0].PrincipalPortion.StringFixed(2))
	assert.Equal(t, "333.33", installments[1].PrincipalPortion.StringFixed(2))
	assert.Equal(t, "333.34", installments[2].PrincipalPortion.StringFixed(2))
	assert.Equal(t, "333.34", installments[2].GrossAmount.StringFixed(2))

	sum := decimal.Zero
	for _, inst := range installments {
		sum = sum.Add(inst.PrincipalPortion)
		assert.True(t, inst.InterestPortion.IsZero())
	}
	assert.True(t, base.Equal(sum), "sum of principal %s != base %s", sum, base)
}

func TestBuildInstallments_StubOnlyOnFirstInstallment(t *testing.T) {
	base := decimal.RequireFromString("107816.71")
	rate := decimal.RequireFromString("9.58")
	stub := decimal.RequireFromString("6541.56")

	withStub, err := BuildInstallments(base, 6, rate, date(2024, 3, 10), 10, domain.DueDayRuleClampToMonthEnd, stub)
	require.NoError(t, err)
	without, err := BuildInstallments(base, 6, rate, date(2024, 3, 10), 10, domain.DueDayRuleClampToMonthEnd, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, withStub[0].GrossAmount.Sub(without[0].GrossAmount).Equal(stub))
	assert.True(t, withStub[0].InterestPortion.Sub(without[0].InterestPortion).Equal(stub))
	assert.True(t, withStub[0].PrincipalPortion.Equal(without[0].PrincipalPortion))

	for k := 1; k < 6; k++ {
		assert.True(t, withStub[k].GrossAmount.Equal(without[k].GrossAmount), "installment %d", k+1)
		assert.True(t, withStub[k].InterestPortion.Equal(without[k].InterestPortion), "installment %d", k+1)
		assert.True(t, withStub[k].PrincipalPortion.Equal(without[k].PrincipalPortion), "installment %d", k+1)
	}
}

func TestBuildInstallments_SequenceAndRounding(t *testing.T) {
	installments, err := BuildInstallments(
		decimal.RequireFromString("5432.10"), 24, decimal.RequireFromString("4.25"),
		date(2025, 1, 31), 31, domain.DueDayRuleClampToMonthEnd, decimal.Zero,
	)
	require.NoError(t, err)

	for k, inst := range installments {
		assert.Equal(t, k+1, inst.SequenceNumber)
		assert.True(t, inst.PrincipalPortion.Equal(inst.PrincipalPortion.Round(2)))
		assert.True(t, inst.InterestPortion.Equal(inst.InterestPortion.Round(2)))
		assert.True(t, inst.GrossAmount.Equal(inst.GrossAmount.Round(2)))
		assert.True(t, inst.PrincipalPortion.IsPositive())
		if k > 0 {
			assert.True(t, inst.DueDate.After(installments[k-1].DueDate))
			// Interest falls as the balance falls
			assert.True(t, inst.InterestPortion.LessThanOrEqual(installments[k-1].InterestPortion))
		}
	}
}
