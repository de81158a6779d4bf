package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mutualia/mutualia-backend/internal/domain"
)

const loanColumns = `id, tenant_id, associate_id, product_id, principal, installment_count,
	monthly_rate_percent, management_fee_percent, due_day, due_day_rule, origination_date,
	financed_base, initial_outstanding_balance, outstanding_balance, status, source, notes,
	created_at, updated_at, cancelled_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// CreateTx inserts a loan within a transaction
func (r *LoanRepository) CreateTx(ctx context.Context, tx interface{}, loan *domain.Loan) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	nums, err := numerics(
		loan.Principal, loan.MonthlyRatePercent, loan.ManagementFeePercent,
		loan.FinancedBase, loan.InitialOutstandingBalance, loan.OutstandingBalance,
	)
	if err != nil {
		return nil, err
	}

	row := pgxTx.QueryRow(ctx, `
		INSERT INTO loans (
			tenant_id, associate_id, product_id, principal, installment_count,
			monthly_rate_percent, management_fee_percent, due_day, due_day_rule, origination_date,
			financed_base, initial_outstanding_balance, outstanding_balance, status, source, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+loanColumns,
		loan.TenantID, loan.AssociateID, loan.ProductID, nums[0], loan.InstallmentCount,
		nums[1], nums[2], loan.DueDay, string(loan.DueDayRule), pgtype.Date{Time: loan.OriginationDate, Valid: true},
		nums[3], nums[4], nums[5], loan.Status, loan.Source, loan.Notes,
	)
	created, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}
	return created, nil
}

// GetByID retrieves a loan by its ID within a tenant
func (r *LoanRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// GetAllByTenant retrieves loans of a tenant, newest origination first
func (r *LoanRepository) GetAllByTenant(ctx context.Context, tenantID int32, filter domain.LoanFilter) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE tenant_id = $1`
	args := []any{tenantID}
	switch filter {
	case domain.LoanFilterActive:
		query += ` AND status = $2`
		args = append(args, domain.LoanStatusActive)
	case domain.LoanFilterCancelled:
		query += ` AND status = $2`
		args = append(args, domain.LoanStatusCancelled)
	}
	query += ` ORDER BY origination_date DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := []*domain.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// CancelTx locks the loan row and marks it cancelled with zero outstanding balance
func (r *LoanRepository) CancelTx(ctx context.Context, tx interface{}, tenantID int32, id int32, cancelledAt time.Time) (*domain.Loan, error) {
	pgxTx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}

	var status string
	err = pgxTx.QueryRow(ctx,
		`SELECT status FROM loans WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if status == domain.LoanStatusCancelled {
		return nil, domain.ErrLoanAlreadyCancelled
	}

	row := pgxTx.QueryRow(ctx, `
		UPDATE loans
		SET status = $3, outstanding_balance = 0, cancelled_at = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+loanColumns,
		tenantID, id, domain.LoanStatusCancelled, cancelledAt,
	)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("cancel loan: %w", err)
	}
	return loan, nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var (
		l                                     domain.Loan
		principal, rate, fee                  pgtype.Numeric
		financedBase, initialBalance, balance pgtype.Numeric
		dueDay                                int16
		rule                                  string
		originationDate                       pgtype.Date
		cancelledAt                           pgtype.Timestamptz
	)
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.AssociateID, &l.ProductID, &principal, &l.InstallmentCount,
		&rate, &fee, &dueDay, &rule, &originationDate,
		&financedBase, &initialBalance, &balance, &l.Status, &l.Source, &l.Notes,
		&l.CreatedAt, &l.UpdatedAt, &cancelledAt,
	); err != nil {
		return nil, err
	}
	l.Principal = pgNumericToDecimal(principal)
	l.MonthlyRatePercent = pgNumericToDecimal(rate)
	l.ManagementFeePercent = pgNumericToDecimal(fee)
	l.DueDay = int32(dueDay)
	l.DueDayRule = domain.DueDayRule(rule)
	l.OriginationDate = originationDate.Time
	l.FinancedBase = pgNumericToDecimal(financedBase)
	l.InitialOutstandingBalance = pgNumericToDecimal(initialBalance)
	l.OutstandingBalance = pgNumericToDecimal(balance)
	if cancelledAt.Valid {
		l.CancelledAt = &cancelledAt.Time
	}
	return &l, nil
}
