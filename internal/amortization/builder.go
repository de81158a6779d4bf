package amortization

import (
	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// FinancedBase returns principal with the management fee capitalized, rounded to cents
func FinancedBase(principal, managementFeePercent decimal.Decimal) decimal.Decimal {
	multiplier := one.Add(managementFeePercent.Div(hundred))
	return principal.Mul(multiplier).Round(2)
}

// Build produces the complete installment plan for terms.
// Invalid terms return a *domain.LoanTermsError and no plan; identical terms always yield an identical plan.
func Build(terms domain.LoanTerms) (*domain.InstallmentPlan, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	origination := civilDate(terms.OriginationDate)
	financedBase := FinancedBase(terms.Principal, terms.ManagementFeePercent)

	firstDue, err := SelectFirstDueDate(origination, terms.DueDay, terms.DueDayRule)
	if err != nil {
		return nil, err
	}

	stub := ProrateStubInterest(origination, firstDue, terms.MonthlyRatePercent, financedBase)

	installments, err := BuildInstallments(
		financedBase,
		terms.InstallmentCount,
		terms.MonthlyRatePercent,
		firstDue,
		terms.DueDay,
		terms.DueDayRule,
		stub,
	)
	if err != nil {
		return nil, err
	}

	balance := decimal.Zero
	for _, inst := range installments {
		balance = balance.Add(inst.GrossAmount)
	}

	return &domain.InstallmentPlan{
		Installments:              installments,
		InitialOutstandingBalance: balance,
		FinancedBase:              financedBase,
		StubInterest:              stub,
		LevelPayment:              LevelPayment(financedBase, terms.InstallmentCount, MonthlyRate(terms.MonthlyRatePercent)).Round(2),
	}, nil
}
