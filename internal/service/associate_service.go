package service

import (
	"context"
	"strings"

	"github.com/mutualia/mutualia-backend/internal/domain"
)

// AssociateService handles associate business logic
type AssociateService struct {
	associateRepo domain.AssociateRepository
}

// NewAssociateService creates a new AssociateService
func NewAssociateService(associateRepo domain.AssociateRepository) *AssociateService {
	return &AssociateService{associateRepo: associateRepo}
}

// CreateAssociateInput contains input for registering an associate
type CreateAssociateInput struct {
	DocumentNumber string
	FullName       string
}

// CreateAssociate registers a new associate of the tenant
func (s *AssociateService) CreateAssociate(ctx context.Context, tenantID int32, input CreateAssociateInput) (*domain.Associate, error) {
	associate := &domain.Associate{
		TenantID:       tenantID,
		DocumentNumber: normalizeDocument(input.DocumentNumber),
		FullName:       strings.TrimSpace(input.FullName),
	}
	if err := associate.Validate(); err != nil {
		return nil, err
	}
	return s.associateRepo.Create(ctx, associate)
}

// ListAssociates returns every associate of the tenant
func (s *AssociateService) ListAssociates(ctx context.Context, tenantID int32) ([]*domain.Associate, error) {
	return s.associateRepo.GetAllByTenant(ctx, tenantID)
}

// GetAssociate returns an associate by ID
func (s *AssociateService) GetAssociate(ctx context.Context, tenantID int32, id int32) (*domain.Associate, error) {
	return s.associateRepo.GetByID(ctx, tenantID, id)
}

// GetAssociateByDocument returns an associate by document number
func (s *AssociateService) GetAssociateByDocument(ctx context.Context, tenantID int32, documentNumber string) (*domain.Associate, error) {
	doc := normalizeDocument(documentNumber)
	if doc == "" {
		return nil, domain.ErrAssociateDocumentEmpty
	}
	return s.associateRepo.GetByDocument(ctx, tenantID, doc)
}

// normalizeDocument strips whitespace, dots and dashes so "12.345.678-9" and "123456789" match
func normalizeDocument(document string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(document))
}
