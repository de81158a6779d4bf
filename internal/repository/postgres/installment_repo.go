package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mutualia/mutualia-backend/internal/domain"
)

// LoanInstallmentRepository implements domain.LoanInstallmentRepository using PostgreSQL
type LoanInstallmentRepository struct {
	pool *pgxpool.Pool
}

// NewLoanInstallmentRepository creates a new LoanInstallmentRepository
func NewLoanInstallmentRepository(pool *pgxpool.Pool) *LoanInstallmentRepository {
	return &LoanInstallmentRepository{pool: pool}
}

// CreateBatchTx inserts all installment rows of a plan in one round trip
func (r *LoanInstallmentRepository) CreateBatchTx(ctx context.Context, tx interface{}, installments []*domain.LoanInstallment) error {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, inst := range installments {
		nums, err := numerics(inst.PrincipalPortion, inst.InterestPortion, inst.GrossAmount)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO installments (loan_id, sequence_number, due_date, principal_portion, interest_portion, gross_amount, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inst.LoanID, inst.SequenceNumber, pgtype.Date{Time: inst.DueDate, Valid: true},
			nums[0], nums[1], nums[2], inst.Status,
		)
	}

	results := pgxTx.SendBatch(ctx, batch)
	for _, inst := range installments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert installment %d: %w", inst.SequenceNumber, err)
		}
	}
	return results.Close()
}

// GetByLoanID retrieves the installments of a loan ordered by sequence number
func (r *LoanInstallmentRepository) GetByLoanID(ctx context.Context, loanID int32) ([]*domain.LoanInstallment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, sequence_number, due_date, principal_portion, interest_portion, gross_amount, status, created_at
		FROM installments
		WHERE loan_id = $1
		ORDER BY sequence_number`,
		loanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := []*domain.LoanInstallment{}
	for rows.Next() {
		var (
			inst                       domain.LoanInstallment
			dueDate                    pgtype.Date
			principal, interest, gross pgtype.Numeric
		)
		if err := rows.Scan(
			&inst.ID, &inst.LoanID, &inst.SequenceNumber, &dueDate,
			&principal, &interest, &gross, &inst.Status, &inst.CreatedAt,
		); err != nil {
			return nil, err
		}
		inst.DueDate = dueDate.Time
		inst.PrincipalPortion = pgNumericToDecimal(principal)
		inst.InterestPortion = pgNumericToDecimal(interest)
		inst.GrossAmount = pgNumericToDecimal(gross)
		installments = append(installments, &inst)
	}
	return installments, rows.Err()
}

// DeleteByLoanIDTx removes every installment of a loan within a transaction
func (r *LoanInstallmentRepository) DeleteByLoanIDTx(ctx context.Context, tx interface{}, loanID int32) (int64, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return 0, err
	}
	tag, err := pgxTx.Exec(ctx, `DELETE FROM installments WHERE loan_id = $1`, loanID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
