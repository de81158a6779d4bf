package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound           = errors.New("credit product not found")
	ErrProductInactive           = errors.New("credit product is inactive")
	ErrProductNameEmpty          = errors.New("credit product name is required")
	ErrProductNameTooLong        = errors.New("credit product name must be 100 characters or less")
	ErrProductCodeEmpty          = errors.New("credit product code is required")
	ErrProductCodeTooLong        = errors.New("credit product code must be 30 characters or less")
	ErrProductCodeExists         = errors.New("credit product with this code already exists")
	ErrProductRateInvalid        = errors.New("monthly rate must be non-negative")
	ErrProductFeeInvalid         = errors.New("management fee must be non-negative")
	ErrProductDistributorInvalid = errors.New("distributor fee must be between 0 and 100")
	ErrProductDueDayInvalid      = errors.New("due day must be between 1 and 31")
	ErrProductDueDayRuleInvalid  = errors.New("due day rule must be 'clamp_to_month_end' or 'strict'")
	ErrProductMaxInstallments    = errors.New("max installments must be at least 1")
	ErrStrictDueDayOverflow      = errors.New("strict due day rule requires a due day of 28 or less")
	ErrInstallmentCountExceeded  = errors.New("installment count exceeds the product maximum")
)

// StrictDueDayLimit is the highest day of month guaranteed to exist in every month
const StrictDueDayLimit = 28

var hundred = decimal.NewFromInt(100)

// CreditProduct is a tenant's loan product configuration
type CreditProduct struct {
	ID                    int32           `json:"id"`
	TenantID              int32           `json:"tenantId"`
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	MonthlyRatePercent    decimal.Decimal `json:"monthlyRatePercent"`
	ManagementFeePercent  decimal.Decimal `json:"managementFeePercent"`
	DistributorFeePercent decimal.Decimal `json:"distributorFeePercent"`
	DueDay                int32           `json:"dueDay"`
	DueDayRule            DueDayRule      `json:"dueDayRule"`
	MaxInstallments       int32           `json:"maxInstallments"`
	Active                bool            `json:"active"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func (p *CreditProduct) Validate() error {
	if p.Code == "" {
		return ErrProductCodeEmpty
	}
	if len(p.Code) > MaxProductCodeLength {
		return ErrProductCodeTooLong
	}
	if p.Name == "" {
		return ErrProductNameEmpty
	}
	if len(p.Name) > MaxProductNameLength {
		return ErrProductNameTooLong
	}
	if p.MonthlyRatePercent.IsNegative() {
		return ErrProductRateInvalid
	}
	if p.ManagementFeePercent.IsNegative() {
		return ErrProductFeeInvalid
	}
	if p.DistributorFeePercent.IsNegative() || p.DistributorFeePercent.GreaterThan(hundred) {
		return ErrProductDistributorInvalid
	}
	if p.DueDay < 1 || p.DueDay > 31 {
		return ErrProductDueDayInvalid
	}
	if !p.DueDayRule.IsValid() {
		return ErrProductDueDayRuleInvalid
	}
	if p.DueDayRule == DueDayRuleStrict && p.DueDay > StrictDueDayLimit {
		return ErrStrictDueDayOverflow
	}
	if p.MaxInstallments < 1 {
		return ErrProductMaxInstallments
	}
	return nil
}

// TermsFor assembles engine input from this product and a loan request
func (p *CreditProduct) TermsFor(principal decimal.Decimal, installmentCount int, originationDate time.Time) LoanTerms {
	return LoanTerms{
		Principal:            principal,
		InstallmentCount:     installmentCount,
		MonthlyRatePercent:   p.MonthlyRatePercent,
		ManagementFeePercent: p.ManagementFeePercent,
		DueDay:               int(p.DueDay),
		DueDayRule:           p.DueDayRule,
		OriginationDate:      originationDate,
	}
}

type CreditProductRepository interface {
	Create(ctx context.Context, product *CreditProduct) (*CreditProduct, error)
	GetByID(ctx context.Context, tenantID int32, id int32) (*CreditProduct, error)
	GetByCode(ctx context.Context, tenantID int32, code string) (*CreditProduct, error)
	GetAllByTenant(ctx context.Context, tenantID int32) ([]*CreditProduct, error)
	SetActive(ctx context.Context, tenantID int32, id int32, active bool) (*CreditProduct, error)
}
