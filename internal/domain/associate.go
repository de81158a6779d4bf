package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAssociateNotFound        = errors.New("associate not found")
	ErrAssociateNameEmpty       = errors.New("associate name is required")
	ErrAssociateNameTooLong     = errors.New("associate name must be 200 characters or less")
	ErrAssociateDocumentEmpty   = errors.New("document number is required")
	ErrAssociateDocumentTooLong = errors.New("document number must be 20 characters or less")
	ErrAssociateDocumentExists  = errors.New("associate with this document number already exists")
)

// Associate is a member of the credit union who can take loans
type Associate struct {
	ID             int32     `json:"id"`
	TenantID       int32     `json:"tenantId"`
	DocumentNumber string    `json:"documentNumber"`
	FullName       string    `json:"fullName"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (a *Associate) Validate() error {
	if a.DocumentNumber == "" {
		return ErrAssociateDocumentEmpty
	}
	if len(a.DocumentNumber) > MaxDocumentLength {
		return ErrAssociateDocumentTooLong
	}
	if a.FullName == "" {
		return ErrAssociateNameEmpty
	}
	if len(a.FullName) > MaxAssociateNameLength {
		return ErrAssociateNameTooLong
	}
	return nil
}

type AssociateRepository interface {
	Create(ctx context.Context, associate *Associate) (*Associate, error)
	GetByID(ctx context.Context, tenantID int32, id int32) (*Associate, error)
	GetByDocument(ctx context.Context, tenantID int32, documentNumber string) (*Associate, error)
	GetAllByTenant(ctx context.Context, tenantID int32) ([]*Associate, error)
}
