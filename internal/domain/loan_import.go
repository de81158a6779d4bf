package domain

import (
	"context"
	"errors"
)

// ImportColumns is the required CSV header of a bulk loan import, in order
var ImportColumns = []string{"document_number", "product_code", "principal", "installments", "origination_date"}

// Import row outcomes
const (
	ImportOutcomeCreated = "created"
	ImportOutcomeFailed  = "failed"
)

var (
	ErrImportEmpty         = errors.New("import file has no data rows")
	ErrImportHeaderInvalid = errors.New("import header must be document_number,product_code,principal,installments,origination_date")
	ErrImportTooManyRows   = errors.New("import file exceeds the maximum number of rows")
)

// ImportRowResult reports what happened to one data row of an import file.
// Row is 1-based and does not count the header.
type ImportRowResult struct {
	Row     int    `json:"row"`
	Outcome string `json:"outcome"`
	LoanID  int32  `json:"loanId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportResult summarizes a bulk import
type ImportResult struct {
	TotalRows  int               `json:"totalRows"`
	Created    int               `json:"created"`
	Failed     int               `json:"failed"`
	ArchiveKey string            `json:"archiveKey,omitempty"`
	Rows       []ImportRowResult `json:"rows"`
}

// ImportArchive stores the raw source file of a bulk import
type ImportArchive interface {
	Archive(ctx context.Context, tenantID int32, filename string, data []byte) (string, error)
}
