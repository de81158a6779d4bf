package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus values
const (
	LoanStatusActive    = "active"
	LoanStatusCancelled = "cancelled"
)

// LoanSource records which origination path created the loan
const (
	LoanSourceManual = "manual"
	LoanSourceImport = "import"
)

var (
	ErrLoanNotFound         = errors.New("loan not found")
	ErrLoanAlreadyCancelled = errors.New("loan is already cancelled")
	ErrLoanAssociateInvalid = errors.New("associate is required")
	ErrLoanProductInvalid   = errors.New("credit product is required")
	ErrLoanNotesTooLong     = errors.New("notes must be 500 characters or less")
	ErrLoanFilterInvalid    = errors.New("status filter must be 'active', 'cancelled' or 'all'")
)

// LoanFilter selects loans by status
type LoanFilter string

const (
	LoanFilterAll       LoanFilter = "all"
	LoanFilterActive    LoanFilter = "active"
	LoanFilterCancelled LoanFilter = "cancelled"
)

// ParseLoanFilter maps a query value to a filter; empty means all
func ParseLoanFilter(value string) (LoanFilter, error) {
	switch LoanFilter(value) {
	case "", LoanFilterAll:
		return LoanFilterAll, nil
	case LoanFilterActive, LoanFilterCancelled:
		return LoanFilter(value), nil
	}
	return "", ErrLoanFilterInvalid
}

// Loan is a disbursed loan. The amortization values are frozen at origination.
type Loan struct {
	ID                        int32           `json:"id"`
	TenantID                  int32           `json:"tenantId"`
	AssociateID               int32           `json:"associateId"`
	ProductID                 int32           `json:"productId"`
	Principal                 decimal.Decimal `json:"principal"`
	InstallmentCount          int32           `json:"installmentCount"`
	MonthlyRatePercent        decimal.Decimal `json:"monthlyRatePercent"`
	ManagementFeePercent      decimal.Decimal `json:"managementFeePercent"`
	DueDay                    int32           `json:"dueDay"`
	DueDayRule                DueDayRule      `json:"dueDayRule"`
	OriginationDate           time.Time       `json:"originationDate"`
	FinancedBase              decimal.Decimal `json:"financedBase"`
	InitialOutstandingBalance decimal.Decimal `json:"initialOutstandingBalance"`
	OutstandingBalance        decimal.Decimal `json:"outstandingBalance"`
	Status                    string          `json:"status"`
	Source                    string          `json:"source"`
	Notes                     *string         `json:"notes,omitempty"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
	CancelledAt               *time.Time      `json:"cancelledAt,omitempty"`
}

// IsCancelled returns true if the loan's plan has been discarded
func (l *Loan) IsCancelled() bool {
	return l.Status == LoanStatusCancelled
}

// Terms rebuilds the engine input the loan was originated with
func (l *Loan) Terms() LoanTerms {
	return LoanTerms{
		Principal:            l.Principal,
		InstallmentCount:     int(l.InstallmentCount),
		MonthlyRatePercent:   l.MonthlyRatePercent,
		ManagementFeePercent: l.ManagementFeePercent,
		DueDay:               int(l.DueDay),
		DueDayRule:           l.DueDayRule,
		OriginationDate:      l.OriginationDate,
	}
}

type LoanRepository interface {
	CreateTx(ctx context.Context, tx interface{}, loan *Loan) (*Loan, error)
	GetByID(ctx context.Context, tenantID int32, id int32) (*Loan, error)
	GetAllByTenant(ctx context.Context, tenantID int32, filter LoanFilter) ([]*Loan, error)
	CancelTx(ctx context.Context, tx interface{}, tenantID int32, id int32, cancelledAt time.Time) (*Loan, error)
}

// Transactor runs fn inside a single storage transaction.
// fn's error rolls the transaction back; a nil error commits it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx interface{}) error) error
}
