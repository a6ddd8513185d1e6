package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// Repository provides PostgreSQL backed lookups for clients and projects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetClient returns one client by id.
func (r *Repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, tax_id, address, payment_term_days, created_at, updated_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.PaymentTermDays, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

// GetProject returns one project by id.
func (r *Repository) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, client_id, created_at, updated_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.ClientID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}
