package service

import (
	"context"

	"github.com/mutualia/mutualia-backend/internal/domain"
)

// TenantService resolves the credit union behind an authenticated operator
type TenantService struct {
	tenantRepo domain.TenantRepository
}

// NewTenantService creates a new TenantService
func NewTenantService(tenantRepo domain.TenantRepository) *TenantService {
	return &TenantService{tenantRepo: tenantRepo}
}

// GetTenant returns the tenant by ID
func (s *TenantService) GetTenant(ctx context.Context, id int32) (*domain.Tenant, error) {
	return s.tenantRepo.GetByID(ctx, id)
}
