package amortization

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func exampleTerms(origination time.Time) domain.LoanTerms {
	return domain.LoanTerms{
		Principal:            decimal.NewFromInt(100000),
		InstallmentCount:     6,
		MonthlyRatePercent:   decimal.RequireFromString("9.58"),
		ManagementFeePercent: decimal.RequireFromString("7.816712"),
		DueDay:               10,
		DueDayRule:           domain.DueDayRuleClampToMonthEnd,
		OriginationDate:      origination,
	}
}

func sumPrincipal(plan *domain.InstallmentPlan) decimal.Decimal {
	sum := decimal.Zero
	for _, inst := range plan.Installments {
		sum = sum.Add(inst.PrincipalPortion)
	}
	return sum
}

func TestBuild_OriginationOnTheTenth(t *testing.T) {
	plan, err := Build(exampleTerms(date(2024, 1, 10)))
	require.NoError(t, err)

	assert.Equal(t, "107816.71", plan.FinancedBase.StringFixed(2))
	assert.True(t, plan.StubInterest.IsZero())
	assert.Equal(t, "24451.60", plan.LevelPayment.StringFixed(2))
	require.Len(t, plan.Installments, 6)

	first := plan.Installments[0]
	assert.Equal(t, "2024-02-10", first.DueDate.Format("2006-01-02"))
	assert.Equal(t, "14122.76", first.PrincipalPortion.StringFixed(2))
	assert.Equal(t, "10328.84", first.InterestPortion.StringFixed(2))
	assert.Equal(t, "24451.60", first.GrossAmount.StringFixed(2))

	wantDates := []string{"2024-02-10", "2024-03-10", "2024-04-10", "2024-05-10", "2024-06-10", "2024-07-10"}
	outstanding := plan.FinancedBase
	for k, inst := range plan.Installments {
		assert.Equal(t, wantDates[k], inst.DueDate.Format("2006-01-02"))
		next := outstanding.Sub(inst.PrincipalPortion)
		assert.True(t, next.LessThan(outstanding), "outstanding must strictly decrease at installment %d", k+1)
		outstanding = next
	}
	assert.True(t, outstanding.IsZero(), "last installment must close the balance, left %s", outstanding)

	assert.True(t, plan.FinancedBase.Equal(sumPrincipal(plan)))
	assert.Equal(t, "146709.60", plan.InitialOutstandingBalance.StringFixed(2))
}

func TestBuild_OriginationAfterMidMonth(t *testing.T) {
	plan, err := Build(exampleTerms(date(2024, 1, 20)))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-10", plan.FirstDueDate().Format("2006-01-02"))
	assert.Equal(t, "2024-08-10", plan.LastDueDate().Format("2006-01-02"))
	assert.Equal(t, "6541.56", plan.StubInterest.StringFixed(2))

	first := plan.Installments[0]
	assert.Equal(t, "16870.40", first.InterestPortion.StringFixed(2))
	assert.Equal(t, "30993.16", first.GrossAmount.StringFixed(2))
	for _, inst := range plan.Installments[1:] {
		assert.Equal(t, "24451.60", inst.GrossAmount.StringFixed(2))
	}

	assert.True(t, plan.FinancedBase.Equal(sumPrincipal(plan)))
	assert.Equal(t, "153251.16", plan.InitialOutstandingBalance.StringFixed(2))
}

func TestBuild_DueDay31ClampsInApril(t *testing.T) {
	terms := exampleTerms(date(2024, 2, 20))
	terms.DueDay = 31

	plan, err := Build(terms)
	require.NoError(t, err)

	// After the 15th: first due two months out, April has 30 days
	assert.Equal(t, "2024-04-30", plan.FirstDueDate().Format("2006-01-02"))
	assert.Equal(t, "2024-05-31", plan.Installments[1].DueDate.Format("2006-01-02"))
	assert.Equal(t, "2024-06-30", plan.Installments[2].DueDate.Format("2006-01-02"))
}

func TestBuild_ZeroRateFallback(t *testing.T) {
	terms := domain.LoanTerms{
		Principal:            decimal.NewFromInt(1200),
		InstallmentCount:     12,
		MonthlyRatePercent:   decimal.Zero,
		ManagementFeePercent: decimal.Zero,
		DueDay:               5,
		DueDayRule:           domain.DueDayRuleClampToMonthEnd,
		OriginationDate:      date(2024, 3, 5),
	}

	plan, err := Build(terms)
	require.NoError(t, err)
	require.Len(t, plan.Installments, 12)

	for _, inst := range plan.Installments {
		assert.Equal(t, "100.00", inst.PrincipalPortion.StringFixed(2))
		assert.True(t, inst.InterestPortion.IsZero())
		assert.Equal(t, "100.00", inst.GrossAmount.StringFixed(2))
	}
	assert.True(t, plan.StubInterest.IsZero())
	assert.Equal(t, "1200.00", plan.InitialOutstandingBalance.StringFixed(2))
}

func TestBuild_ZeroRateRemainderOnLastInstallment(t *testing.T) {
	terms := domain.LoanTerms{
		Principal:            decimal.NewFromInt(100),
		InstallmentCount:     3,
		MonthlyRatePercent:   decimal.Zero,
		ManagementFeePercent: decimal.Zero,
		DueDay:               5,
		DueDayRule:           domain.DueDayRuleClampToMonthEnd,
		OriginationDate:      date(2024, 3, 5),
	}

	plan, err := Build(terms)
	require.NoError(t, err)
	require.Len(t, plan.Installments, 3)

	want := []string{"33.33", "33.33", "33.34"}
	for k, inst := range plan.Installments {
		assert.Equal(t, want[k], inst.PrincipalPortion.StringFixed(2))
		assert.Equal(t, want[k], inst.GrossAmount.StringFixed(2))
		assert.True(t, inst.InterestPortion.IsZero())
	}
	assert.True(t, plan.FinancedBase.Equal(sumPrincipal(plan)))
	assert.Equal(t, "100.00", plan.InitialOutstandingBalance.StringFixed(2))
}

func TestBuild_SingleInstallment(t *testing.T) {
	terms := exampleTerms(date(2024, 1, 10))
	terms.InstallmentCount = 1

	plan, err := Build(terms)
	require.NoError(t, err)
	require.Len(t, plan.Installments, 1)
	assert.True(t, plan.FinancedBase.Equal(plan.Installments[0].PrincipalPortion))
}

func TestBuild_InvalidTerms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.LoanTerms)
		field  string
	}{
		{"zero principal", func(t *domain.LoanTerms) { t.Principal = decimal.Zero }, "principal"},
		{"negative principal", func(t *domain.LoanTerms) { t.Principal = decimal.NewFromInt(-1) }, "principal"},
		{"zero installments", func(t *domain.LoanTerms) { t.InstallmentCount = 0 }, "installmentCount"},
		{"negative rate", func(t *domain.LoanTerms) { t.MonthlyRatePercent = decimal.NewFromInt(-1) }, "monthlyRatePercent"},
		{"negative fee", func(t *domain.LoanTerms) { t.ManagementFeePercent = decimal.NewFromInt(-1) }, "managementFeePercent"},
		{"due day 0", func(t *domain.LoanTerms) { t.DueDay = 0 }, "dueDay"},
		{"due day 32", func(t *domain.LoanTerms) { t.DueDay = 32 }, "dueDay"},
		{"unknown rule", func(t *domain.LoanTerms) { t.DueDayRule = "weekly" }, "dueDayRule"},
		{"missing origination", func(t *domain.LoanTerms) { t.OriginationDate = time.Time{} }, "originationDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := exampleTerms(date(2024, 1, 10))
			tt.mutate(&terms)

			plan, err := Build(terms)
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, domain.ErrInvalidLoanTerms))

			var termsErr *domain.LoanTermsError
			require.True(t, errors.As(err, &termsErr))
			assert.Equal(t, tt.field, termsErr.Field)
		})
	}
}

func TestBuild_StrictOverflowReturnsNoPlan(t *testing.T) {
	terms := exampleTerms(date(2024, 1, 5))
	terms.DueDay = 31
	terms.DueDayRule = domain.DueDayRuleStrict

	// First due 2024-02 has no day 31
	plan, err := Build(terms)
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, domain.ErrCalendarOverflow)
}

func TestBuild_Idempotent(t *testing.T) {
	terms := exampleTerms(date(2024, 1, 20))

	first, err := Build(terms)
	require.NoError(t, err)
	second, err := Build(terms)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestBuild_ConcurrentCallsAgree(t *testing.T) {
	terms := exampleTerms(date(2024, 1, 20))
	want, err := Build(terms)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*domain.InstallmentPlan, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Build(terms)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.True(t, reflect.DeepEqual(want, got))
	}
}

func TestBuild_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	start := date(2023, 1, 1)

	for i := 0; i < 300; i++ {
		terms := domain.LoanTerms{
			Principal:            decimal.NewFromInt(int64(rng.Intn(5_000_000)+1)).Div(decimal.NewFromInt(100)),
			InstallmentCount:     rng.Intn(60) + 1,
			MonthlyRatePercent:   decimal.NewFromInt(int64(rng.Intn(1500))).Div(decimal.NewFromInt(100)),
			ManagementFeePercent: decimal.NewFromInt(int64(rng.Intn(1000))).Div(decimal.NewFromInt(100)),
			DueDay:               rng.Intn(31) + 1,
			DueDayRule:           domain.DueDayRuleClampToMonthEnd,
			OriginationDate:      start.AddDate(0, 0, rng.Intn(730)),
		}

		plan, err := Build(terms)
		require.NoError(t, err, "terms %+v", terms)
		require.Len(t, plan.Installments, terms.InstallmentCount)

		// Balance conservation
		assert.True(t, plan.FinancedBase.Equal(sumPrincipal(plan)), "principal sum drifted for %+v", terms)

		// Initial balance is the sum of gross amounts
		gross := decimal.Zero
		for _, inst := range plan.Installments {
			gross = gross.Add(inst.GrossAmount)
		}
		assert.True(t, gross.Equal(plan.InitialOutstandingBalance))

		// Stub interest only appears on installment 1
		if terms.InstallmentCount > 1 {
			assert.True(t, plan.Installments[0].GrossAmount.Sub(plan.StubInterest).Sub(plan.Installments[1].GrossAmount).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))
		}

		// Due dates: one calendar month apart, day equals due day unless clamped
		first := plan.Installments[0].DueDate
		for k, inst := range plan.Installments {
			anchor := monthAnchor(first, k)
			assert.Equal(t, anchor.Year(), inst.DueDate.Year())
			assert.Equal(t, anchor.Month(), inst.DueDate.Month())
			wantDay := min(terms.DueDay, lastDayOfMonth(anchor.Year(), anchor.Month()))
			assert.Equal(t, wantDay, inst.DueDate.Day())
			if k > 0 {
				assert.True(t, inst.DueDate.After(plan.Installments[k-1].DueDate))
			}
		}
	}
}
