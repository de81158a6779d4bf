package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Installment status values. Only collections moves a row out of pending.
const (
	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
)

// LoanInstallment is a persisted installment row of a loan's plan
type LoanInstallment struct {
	ID               int32           `json:"id"`
	LoanID           int32           `json:"loanId"`
	SequenceNumber   int32           `json:"sequenceNumber"`
	DueDate          time.Time       `json:"dueDate"`
	PrincipalPortion decimal.Decimal `json:"principalPortion"`
	InterestPortion  decimal.Decimal `json:"interestPortion"`
	GrossAmount      decimal.Decimal `json:"grossAmount"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// FormatLabel returns a label like "1/6" for installment 1 of 6
func (li *LoanInstallment) FormatLabel(total int32) string {
	return fmt.Sprintf("%d/%d", li.SequenceNumber, total)
}

// InstallmentsFromPlan converts a computed plan into pending rows for loanID
func InstallmentsFromPlan(loanID int32, plan *InstallmentPlan) []*LoanInstallment {
	rows := make([]*LoanInstallment, len(plan.Installments))
	for i, inst := range plan.Installments {
		rows[i] = &LoanInstallment{
			LoanID:           loanID,
			SequenceNumber:   int32(inst.SequenceNumber),
			DueDate:          inst.DueDate,
			PrincipalPortion: inst.PrincipalPortion,
			InterestPortion:  inst.InterestPortion,
			GrossAmount:      inst.GrossAmount,
			Status:           InstallmentStatusPending,
		}
	}
	return rows
}

type LoanInstallmentRepository interface {
	CreateBatchTx(ctx context.Context, tx interface{}, installments []*LoanInstallment) error
	GetByLoanID(ctx context.Context, loanID int32) ([]*LoanInstallment, error)
	DeleteByLoanIDTx(ctx context.Context, tx interface{}, loanID int32) (int64, error)
}
