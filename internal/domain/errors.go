package domain

import "errors"

// Domain errors
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrTenantNotFound = errors.New("tenant not found")
)

// Validation constants
const (
	MaxProductNameLength   = 100
	MaxProductCodeLength   = 30
	MaxAssociateNameLength = 200
	MaxDocumentLength      = 20
	MaxNotesLength         = 500
)
