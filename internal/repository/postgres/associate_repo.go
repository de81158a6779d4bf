package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mutualia/mutualia-backend/internal/domain"
)

const associateColumns = `id, tenant_id, document_number, full_name, created_at, updated_at`

// AssociateRepository implements domain.AssociateRepository using PostgreSQL
type AssociateRepository struct {
	pool *pgxpool.Pool
}

// NewAssociateRepository creates a new AssociateRepository
func NewAssociateRepository(pool *pgxpool.Pool) *AssociateRepository {
	return &AssociateRepository{pool: pool}
}

// Create inserts a new associate
func (r *AssociateRepository) Create(ctx context.Context, a *domain.Associate) (*domain.Associate, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO associates (tenant_id, document_number, full_name)
		VALUES ($1, $2, $3)
		RETURNING `+associateColumns,
		a.TenantID, a.DocumentNumber, a.FullName,
	)
	created, err := scanAssociate(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAssociateDocumentExists
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves an associate by ID within a tenant
func (r *AssociateRepository) GetByID(ctx context.Context, tenantID int32, id int32) (*domain.Associate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+associateColumns+` FROM associates WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return scanAssociateOrNotFound(row)
}

// GetByDocument retrieves an associate by document number within a tenant
func (r *AssociateRepository) GetByDocument(ctx context.Context, tenantID int32, documentNumber string) (*domain.Associate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+associateColumns+` FROM associates WHERE tenant_id = $1 AND document_number = $2`,
		tenantID, documentNumber,
	)
	return scanAssociateOrNotFound(row)
}

// GetAllByTenant retrieves every associate of a tenant ordered by name
func (r *AssociateRepository) GetAllByTenant(ctx context.Context, tenantID int32) ([]*domain.Associate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+associateColumns+` FROM associates WHERE tenant_id = $1 ORDER BY full_name, id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	associates := []*domain.Associate{}
	for rows.Next() {
		a, err := scanAssociate(rows)
		if err != nil {
			return nil, err
		}
		associates = append(associates, a)
	}
	return associates, rows.Err()
}

func scanAssociateOrNotFound(row pgx.Row) (*domain.Associate, error) {
	a, err := scanAssociate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssociateNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAssociate(row pgx.Row) (*domain.Associate, error) {
	var a domain.Associate
	if err := row.Scan(&a.ID, &a.TenantID, &a.DocumentNumber, &a.FullName, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
