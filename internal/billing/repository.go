package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solera-erp/solera-erp/internal/platform/db"
	"github.com/solera-erp/solera-erp/internal/shared"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	GetGuarantee(ctx context.Context, id int64) (*Guarantee, error)
	ListGuarantees(ctx context.Context, status GuaranteeStatus) ([]Guarantee, error)
	GetSeriesDefaults(ctx context.Context, kind SeriesKind) (*SeriesConfig, error)
}

// TxRepository exposes transactional operations. All writes of a logical
// operation go through one TxRepository so partial failures roll back as a
// unit.
type TxRepository interface {
	GetSeriesConfig(ctx context.Context, kind SeriesKind) (*SeriesConfig, error)
	AdvanceSeriesCounter(ctx context.Context, kind SeriesKind, observedYear, observedNumber, newYear, newNumber int) (bool, error)

	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error)
	InsertGuarantee(ctx context.Context, g Guarantee) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	UpdateInvoiceBalance(ctx context.Context, id int64, paid, pending float64, status InvoiceStatus) error
	UpdateDraftInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoiceLines(ctx context.Context, invoiceID int64) error
	DeleteInvoiceGuarantees(ctx context.Context, invoiceID int64) error
	DeleteInvoice(ctx context.Context, id int64) error

	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)

	GetGuaranteeForUpdate(ctx context.Context, id int64) (*Guarantee, error)
	UpdateGuaranteeStatus(ctx context.Context, id int64, status GuaranteeStatus, releasedAt *time.Time) error
	SetInvoiceGuaranteeReleased(ctx context.Context, invoiceID int64) error

	// MarkClosingInvoiced flips a pending monthly closing to INVOICED with a
	// back-reference. Returns false when the closing was not pending, which
	// aborts the enclosing transaction.
	MarkClosingInvoiced(ctx context.Context, closingID, invoiceID int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, series, number, full_number, fiscal_year, type, rectifies_id,
client_id, client_name, client_tax_id, client_address, project_id,
issue_date, due_date, payment_term_days,
subtotal, vat_rate, vat_amount, retention_rate, retention_amount,
guarantee_rate, guarantee_amount, total, paid_to_date, pending,
status, has_guarantee, guarantee_released, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.Series, &inv.Number, &inv.FullNumber, &inv.FiscalYear, &inv.Type, &inv.RectifiesID,
		&inv.ClientID, &inv.ClientName, &inv.ClientTaxID, &inv.ClientAddress, &inv.ProjectID,
		&inv.IssueDate, &inv.DueDate, &inv.PaymentTermDays,
		&inv.Subtotal, &inv.VATRate, &inv.VATAmount, &inv.RetentionRate, &inv.RetentionAmount,
		&inv.GuaranteeRate, &inv.GuaranteeAmount, &inv.Total, &inv.PaidToDate, &inv.Pending,
		&inv.Status, &inv.HasGuarantee, &inv.GuaranteeReleased, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice", shared.ErrNotFound)
		}
		return nil, err
	}
	return &inv, nil
}

// GetInvoice returns one invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, line_order, description, unit,
origin_qty, previous_qty, current_qty, unit_price, discount_rate, subtotal, vat_amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_order`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineOrder, &l.Description, &l.Unit,
			&l.OriginQty, &l.PreviousQty, &l.CurrentQty, &l.UnitPrice, &l.DiscountRate, &l.Subtotal, &l.VATAmount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListInvoices returns a filtered, paginated invoice list.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.ClientID > 0 {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, req.ClientID)
		argPos++
	}
	if req.ProjectID > 0 {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argPos))
		args = append(args, req.ProjectID)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

// ListOutstanding returns issued invoices with a remaining balance.
func (r *Repository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE status IN ('ISSUED','PARTIALLY_PAID') AND pending > 0 ORDER BY due_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// ListPayments returns all payments recorded against an invoice.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return listPayments(ctx, r.pool, invoiceID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPayments(ctx context.Context, q querier, invoiceID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT id, number, invoice_id, amount, paid_at, method, reference, notes, created_at
FROM payments WHERE invoice_id = $1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Method, &p.Reference, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const guaranteeColumns = `id, invoice_id, amount, retained_at, status, released_at, created_at, updated_at`

func scanGuarantee(row rowScanner) (*Guarantee, error) {
	var g Guarantee
	err := row.Scan(&g.ID, &g.InvoiceID, &g.Amount, &g.RetainedAt, &g.Status, &g.ReleasedAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: guarantee", shared.ErrNotFound)
		}
		return nil, err
	}
	return &g, nil
}

// GetGuarantee returns one guarantee by id.
func (r *Repository) GetGuarantee(ctx context.Context, id int64) (*Guarantee, error) {
	return scanGuarantee(r.pool.QueryRow(ctx, `SELECT `+guaranteeColumns+` FROM guarantees WHERE id = $1`, id))
}

// ListGuarantees returns guarantees, optionally filtered by status.
func (r *Repository) ListGuarantees(ctx context.Context, status GuaranteeStatus) ([]Guarantee, error) {
	query := `SELECT ` + guaranteeColumns + ` FROM guarantees ORDER BY retained_at`
	args := []interface{}{}
	if status != "" {
		query = `SELECT ` + guaranteeColumns + ` FROM guarantees WHERE status = $1 ORDER BY retained_at`
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guarantee
	for rows.Next() {
		g, err := scanGuarantee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

const seriesColumns = `kind, prefix, pad_width, fiscal_year, last_number,
default_vat_rate, default_retention_rate, default_guarantee_rate, default_payment_days`

func scanSeriesConfig(row rowScanner) (*SeriesConfig, error) {
	var c SeriesConfig
	err := row.Scan(&c.Kind, &c.Prefix, &c.PadWidth, &c.FiscalYear, &c.LastNumber,
		&c.DefaultVATRate, &c.DefaultRetentionRate, &c.DefaultGuaranteeRate, &c.DefaultPaymentDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetSeriesDefaults reads the active configuration row outside a transaction.
func (r *Repository) GetSeriesDefaults(ctx context.Context, kind SeriesKind) (*SeriesConfig, error) {
	return scanSeriesConfig(r.pool.QueryRow(ctx,
		`SELECT `+seriesColumns+` FROM billing_config WHERE kind = $1 ORDER BY fiscal_year DESC LIMIT 1`, kind))
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) GetSeriesConfig(ctx context.Context, kind SeriesKind) (*SeriesConfig, error) {
	return scanSeriesConfig(t.tx.QueryRow(ctx,
		`SELECT `+seriesColumns+` FROM billing_config WHERE kind = $1 ORDER BY fiscal_year DESC LIMIT 1`, kind))
}

func (t *txRepo) AdvanceSeriesCounter(ctx context.Context, kind SeriesKind, observedYear, observedNumber, newYear, newNumber int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE billing_config
SET fiscal_year = $1, last_number = $2
WHERE kind = $3 AND fiscal_year = $4 AND last_number = $5`,
		newYear, newNumber, kind, observedYear, observedNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices
(series, number, full_number, fiscal_year, type, rectifies_id,
 client_id, client_name, client_tax_id, client_address, project_id,
 issue_date, due_date, payment_term_days,
 subtotal, vat_rate, vat_amount, retention_rate, retention_amount,
 guarantee_rate, guarantee_amount, total, paid_to_date, pending,
 status, has_guarantee, guarantee_released, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
RETURNING id`,
		inv.Series, inv.Number, inv.FullNumber, inv.FiscalYear, inv.Type, inv.RectifiesID,
		inv.ClientID, inv.ClientName, inv.ClientTaxID, inv.ClientAddress, inv.ProjectID,
		inv.IssueDate, inv.DueDate, inv.PaymentTermDays,
		inv.Subtotal, inv.VATRate, inv.VATAmount, inv.RetentionRate, inv.RetentionAmount,
		inv.GuaranteeRate, inv.GuaranteeAmount, inv.Total, inv.PaidToDate, inv.Pending,
		inv.Status, inv.HasGuarantee, inv.GuaranteeReleased, inv.Notes, inv.CreatedAt, inv.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_lines
(invoice_id, line_order, description, unit, origin_qty, previous_qty, current_qty,
 unit_price, discount_rate, subtotal, vat_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		line.InvoiceID, line.LineOrder, line.Description, line.Unit,
		line.OriginQty, line.PreviousQty, line.CurrentQty,
		line.UnitPrice, line.DiscountRate, line.Subtotal, line.VATAmount).Scan(&id)
	return id, err
}

func (t *txRepo) InsertGuarantee(ctx context.Context, g Guarantee) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO guarantees
(invoice_id, amount, retained_at, status, released_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		g.InvoiceID, g.Amount, g.RetainedAt, g.Status, g.ReleasedAt, g.CreatedAt, g.UpdatedAt).Scan(&id)
	return id, err
}

// GetInvoiceForUpdate locks the invoice row so concurrent payments against
// the same invoice serialize.
func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (t *txRepo) UpdateInvoiceBalance(ctx context.Context, id int64, paid, pending float64, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices
SET paid_to_date = $1, pending = $2, status = $3, updated_at = now() WHERE id = $4`,
		paid, pending, status, id)
	return err
}

// UpdateDraftInvoice rewrites a draft's editable header and derived totals.
// Identity columns (series, number, type, client snapshot) never move.
func (t *txRepo) UpdateDraftInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET
issue_date = $1, due_date = $2, payment_term_days = $3,
subtotal = $4, vat_rate = $5, vat_amount = $6,
retention_rate = $7, retention_amount = $8,
guarantee_rate = $9, guarantee_amount = $10,
total = $11, pending = $12,
has_guarantee = $13, notes = $14, updated_at = now()
WHERE id = $15`,
		inv.IssueDate, inv.DueDate, inv.PaymentTermDays,
		inv.Subtotal, inv.VATRate, inv.VATAmount,
		inv.RetentionRate, inv.RetentionAmount,
		inv.GuaranteeRate, inv.GuaranteeAmount,
		inv.Total, inv.Pending,
		inv.HasGuarantee, inv.Notes, inv.ID)
	return err
}

func (t *txRepo) DeleteInvoiceLines(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, invoiceID)
	return err
}

func (t *txRepo) DeleteInvoiceGuarantees(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM guarantees WHERE invoice_id = $1`, invoiceID)
	return err
}

func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	if err := t.DeleteInvoiceLines(ctx, id); err != nil {
		return err
	}
	if err := t.DeleteInvoiceGuarantees(ctx, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments
(number, invoice_id, amount, paid_at, method, reference, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		p.Number, p.InvoiceID, p.Amount, p.PaidAt, p.Method, p.Reference, p.Notes, p.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return listPayments(ctx, t.tx, invoiceID)
}

func (t *txRepo) GetGuaranteeForUpdate(ctx context.Context, id int64) (*Guarantee, error) {
	return scanGuarantee(t.tx.QueryRow(ctx, `SELECT `+guaranteeColumns+` FROM guarantees WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateGuaranteeStatus(ctx context.Context, id int64, status GuaranteeStatus, releasedAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE guarantees SET status = $1, released_at = $2, updated_at = now() WHERE id = $3`,
		status, releasedAt, id)
	return err
}

func (t *txRepo) SetInvoiceGuaranteeReleased(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET guarantee_released = TRUE, updated_at = now() WHERE id = $1`, invoiceID)
	return err
}

func (t *txRepo) MarkClosingInvoiced(ctx context.Context, closingID, invoiceID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE monthly_closings
SET status = 'INVOICED', invoice_id = $1, updated_at = now()
WHERE id = $2 AND status = 'PENDING'`, invoiceID, closingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
