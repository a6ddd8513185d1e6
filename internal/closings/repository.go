package closings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// RepositoryPort defines data access for monthly closings.
type RepositoryPort interface {
	Insert(ctx context.Context, c MonthlyClosing) (int64, error)
	Get(ctx context.Context, id int64) (*MonthlyClosing, error)
	List(ctx context.Context, req ListClosingsRequest) ([]MonthlyClosing, error)
	Cancel(ctx context.Context, id int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence for closings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingColumns = `id, client_id, project_id, period, description, hours, amount, status, invoice_id, created_at, updated_at`

func scanClosing(row interface{ Scan(dest ...any) error }) (*MonthlyClosing, error) {
	var c MonthlyClosing
	err := row.Scan(&c.ID, &c.ClientID, &c.ProjectID, &c.Period, &c.Description,
		&c.Hours, &c.Amount, &c.Status, &c.InvoiceID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: closing", shared.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// Insert stores a new closing.
func (r *Repository) Insert(ctx context.Context, c MonthlyClosing) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO monthly_closings
(client_id, project_id, period, description, hours, amount, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		c.ClientID, c.ProjectID, c.Period, c.Description, c.Hours, c.Amount, c.Status, c.CreatedAt, c.UpdatedAt).Scan(&id)
	return id, err
}

// Get returns one closing by id.
func (r *Repository) Get(ctx context.Context, id int64) (*MonthlyClosing, error) {
	return scanClosing(r.pool.QueryRow(ctx, `SELECT `+closingColumns+` FROM monthly_closings WHERE id = $1`, id))
}

// List returns closings filtered by status, client and period.
func (r *Repository) List(ctx context.Context, req ListClosingsRequest) ([]MonthlyClosing, error) {
	query := `SELECT ` + closingColumns + ` FROM monthly_closings WHERE 1=1`
	var args []interface{}
	argPos := 1
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, req.Status)
		argPos++
	}
	if req.ClientID > 0 {
		query += fmt.Sprintf(" AND client_id = $%d", argPos)
		args = append(args, req.ClientID)
		argPos++
	}
	if req.Period != "" {
		query += fmt.Sprintf(" AND period = $%d", argPos)
		args = append(args, req.Period)
		argPos++
	}
	query += " ORDER BY period DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlyClosing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Cancel flips a pending closing to CANCELLED. Returns false when the
// closing was not pending.
func (r *Repository) Cancel(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE monthly_closings
SET status = 'CANCELLED', updated_at = now() WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
