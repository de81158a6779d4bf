package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mutualia/mutualia-backend/internal/domain"
)

const creditProductColumns = `id, tenant_id, code, name, monthly_rate_percent, management_fee_percent,
	distributor_fee_percent, due_day, due_day_rule, max_installments, active, created_at, updated_at`

// CreditProductRepository implements domain.CreditProductRepository using PostgreSQL
type CreditProductRepository struct {
	pool *pgxpool.Pool
}

// NewCreditProductRepository creates a new CreditProductRepository
func NewCreditProductRepository(pool *pgxpool.Pool) *CreditProductRepository {
	return &CreditProductRepository{pool: pool}
}

// Create inserts a new credit product
func (r *CreditProductRepository) Create(ctx context.Context, p *domain.CreditProduct) (*domain.CreditProduct, error) {
	nums, err := numerics(p.MonthlyRatePercent, p.ManagementFeePercent, p.DistributorFeePercent)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO credit_products (
			tenant_id, code, name, monthly_rate_percent, management_fee_percent,
			distributor_fee_percent, due_day, due_day_rule, max_installments, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+creditProductColumns,
		p.TenantID, p.Code, p.Name, nums[0], nums[1], nums[2],
		p.DueDay, string(p.DueDayRule), p.MaxInstallments, p.Active,
	)
	created, err := scanCreditProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrProductCodeExists
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a credit product by its ID within a tenant
func (r *CreditProductRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.CreditProduct, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+creditProductColumns+` FROM credit_products WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return scanCreditProductOrNotFound(row)
}

// GetByCode retrieves a credit product by its code within a tenant
func (r *CreditProductRepository) GetByCode(ctx context.Context, tenantID int32, code string) (*domain.CreditProduct, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+creditProductColumns+` FROM credit_products WHERE tenant_id = $1 AND code = $2`,
		tenantID, code,
	)
	return scanCreditProductOrNotFound(row)
}

// GetAllByTenant retrieves every credit product of a tenant ordered by code
func (r *CreditProductRepository) GetAllByTenant(ctx context.Context, tenantID int32) ([]*domain.CreditProduct, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+creditProductColumns+` FROM credit_products WHERE tenant_id = $1 ORDER BY code`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*domain.CreditProduct{}
	for rows.Next() {
		p, err := scanCreditProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SetActive toggles whether the product accepts new loans
func (r *CreditProductRepository) SetActive(ctx context.Context, tenantID int32, id int32, active bool) (*domain.CreditProduct, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE credit_products SET active = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+creditProductColumns,
		tenantID, id, active,
	)
	return scanCreditProductOrNotFound(row)
}

func scanCreditProductOrNotFound(row pgx.Row) (*domain.CreditProduct, error) {
	p, err := scanCreditProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanCreditProduct(row pgx.Row) (*domain.CreditProduct, error) {
	var (
		p                 domain.CreditProduct
		rate, fee, distrb pgtype.Numeric
		dueDay            int16
		rule              string
	)
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Code, &p.Name, &rate, &fee, &distrb,
		&dueDay, &rule, &p.MaxInstallments, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.MonthlyRatePercent = pgNumericToDecimal(rate)
	p.ManagementFeePercent = pgNumericToDecimal(fee)
	p.DistributorFeePercent = pgNumericToDecimal(distrb)
	p.DueDay = int32(dueDay)
	p.DueDayRule = domain.DueDayRule(rule)
	return &p, nil
}
