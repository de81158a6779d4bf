package service

import (
	"context"
	"strings"

	"github.com/mutualia/mutualia-backend/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CreditProductService handles credit product business logic
type CreditProductService struct {
	productRepo domain.CreditProductRepository
}

// NewCreditProductService creates a new CreditProductService
func NewCreditProductService(productRepo domain.CreditProductRepository) *CreditProductService {
	return &CreditProductService{productRepo: productRepo}
}

// CreateProductInput contains input for creating a credit product
type CreateProductInput struct {
	Code                  string
	Name                  string
	MonthlyRatePercent    decimal.Decimal
	ManagementFeePercent  decimal.Decimal
	DistributorFeePercent decimal.Decimal
	DueDay                int32
	DueDayRule            domain.DueDayRule
	MaxInstallments       int32
}

// CreateProduct validates and stores a new active credit product
func (s *CreditProductService) CreateProduct(ctx context.Context, tenantID int32, input CreateProductInput) (*domain.CreditProduct, error) {
	rule := input.DueDayRule
	if rule == "" {
		rule = domain.DueDayRuleClampToMonthEnd
	}

	product := &domain.CreditProduct{
		TenantID:              tenantID,
		Code:                  strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:                  strings.TrimSpace(input.Name),
		MonthlyRatePercent:    input.MonthlyRatePercent,
		ManagementFeePercent:  input.ManagementFeePercent,
		DistributorFeePercent: input.DistributorFeePercent,
		DueDay:                input.DueDay,
		DueDayRule:            rule,
		MaxInstallments:       input.MaxInstallments,
		Active:                true,
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	created, err := s.productRepo.Create(ctx, product)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("tenant_id", tenantID).
		Int32("product_id", created.ID).
		Str("code", created.Code).
		Str("due_day_rule", string(created.DueDayRule)).
		Msg("Credit product created")

	return created, nil
}

// ListProducts returns every product of the tenant
func (s *CreditProductService) ListProducts(ctx context.Context, tenantID int32) ([]*domain.CreditProduct, error) {
	return s.productRepo.GetAllByTenant(ctx, tenantID)
}

// GetProduct returns a product by ID
func (s *CreditProductService) GetProduct(ctx context.Context, tenantID int32, id int32) (*domain.CreditProduct, error) {
	return s.productRepo.GetByID(ctx, tenantID, id)
}

// DeactivateProduct stops a product from accepting new loans. Existing loans keep their frozen terms.
func (s *CreditProductService) DeactivateProduct(ctx context.Context, tenantID int32, id int32) (*domain.CreditProduct, error) {
	product, err := s.productRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return product, nil
	}
	return s.productRepo.SetActive(ctx, tenantID, id, false)
}
