package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DueDayRule governs what happens when the configured due day does not exist in a month
type DueDayRule string

const (
	// DueDayRuleClampToMonthEnd moves a missing day to the last day of the month
	DueDayRuleClampToMonthEnd DueDayRule = "clamp_to_month_end"
	// DueDayRuleStrict uses the due day verbatim; a missing day is a calendar overflow
	DueDayRuleStrict DueDayRule = "strict"
)

// IsValid reports whether the rule is one of the known rules
func (r DueDayRule) IsValid() bool {
	return r == DueDayRuleClampToMonthEnd || r == DueDayRuleStrict
}

var (
	ErrInvalidLoanTerms = errors.New("invalid loan terms")
	ErrCalendarOverflow = errors.New("due day does not exist in scheduled month")
)

// LoanTermsError describes which loan term failed validation
type LoanTermsError struct {
	Field   string
	Message string
}

func (e *LoanTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s %s", e.Field, e.Message)
}

func (e *LoanTermsError) Unwrap() error {
	return ErrInvalidLoanTerms
}

// LoanTerms is the immutable input of the amortization engine
type LoanTerms struct {
	Principal            decimal.Decimal
	InstallmentCount     int
	MonthlyRatePercent   decimal.Decimal
	ManagementFeePercent decimal.Decimal
	DueDay               int
	DueDayRule           DueDayRule
	OriginationDate      time.Time
}

// Validate checks the terms before any calculation happens
func (t LoanTerms) Validate() error {
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return &LoanTermsError{Field: "principal", Message: "must be positive"}
	}
	if t.InstallmentCount < 1 {
		return &LoanTermsError{Field: "installmentCount", Message: "must be at least 1"}
	}
	if t.MonthlyRatePercent.IsNegative() {
		return &LoanTermsError{Field: "monthlyRatePercent", Message: "must be non-negative"}
	}
	if t.ManagementFeePercent.IsNegative() {
		return &LoanTermsError{Field: "managementFeePercent", Message: "must be non-negative"}
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return &LoanTermsError{Field: "dueDay", Message: "must be between 1 and 31"}
	}
	if !t.DueDayRule.IsValid() {
		return &LoanTermsError{Field: "dueDayRule", Message: "must be 'clamp_to_month_end' or 'strict'"}
	}
	if t.OriginationDate.IsZero() {
		return &LoanTermsError{Field: "originationDate", Message: "is required"}
	}
	return nil
}

// Installment is one computed row of an installment plan
type Installment struct {
	SequenceNumber   int             `json:"sequenceNumber"`
	DueDate          time.Time       `json:"dueDate"`
	PrincipalPortion decimal.Decimal `json:"principalPortion"`
	InterestPortion  decimal.Decimal `json:"interestPortion"`
	GrossAmount      decimal.Decimal `json:"grossAmount"`
}

// InstallmentPlan is the full schedule produced at loan origination
type InstallmentPlan struct {
	Installments              []Installment   `json:"installments"`
	InitialOutstandingBalance decimal.Decimal `json:"initialOutstandingBalance"`
	FinancedBase              decimal.Decimal `json:"financedBase"`
	StubInterest              decimal.Decimal `json:"stubInterest"`
	LevelPayment              decimal.Decimal `json:"levelPayment"`
}

// FirstDueDate returns the due date of installment 1
func (p *InstallmentPlan) FirstDueDate() time.Time {
	if len(p.Installments) == 0 {
		return time.Time{}
	}
	return p.Installments[0].DueDate
}

// LastDueDate returns the due date of the final installment
func (p *InstallmentPlan) LastDueDate() time.Time {
	if len(p.Installments) == 0 {
		return time.Time{}
	}
	return p.Installments[len(p.Installments)-1].DueDate
}

// TotalInterest sums the interest portion of every installment
func (p *InstallmentPlan) TotalInterest() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range p.Installments {
		total = total.Add(inst.InterestPortion)
	}
	return total
}
