package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solera-erp/solera-erp/internal/masterdata"
	"github.com/solera-erp/solera-erp/internal/shared"
)

// memoryRepo implements RepositoryPort and TxRepository in memory. WithTx
// snapshots all state before the callback and restores it on error, so
// rollback behaviour is observable in tests.
type memoryRepo struct {
	mu sync.Mutex

	series     map[SeriesKind]*SeriesConfig
	invoices   map[int64]*Invoice
	lines      map[int64][]InvoiceLine
	payments   map[int64][]Payment
	guarantees map[int64]*Guarantee
	closings   map[int64]string

	nextID int64

	failInsertLine bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		series:     make(map[SeriesKind]*SeriesConfig),
		invoices:   make(map[int64]*Invoice),
		lines:      make(map[int64][]InvoiceLine),
		payments:   make(map[int64][]Payment),
		guarantees: make(map[int64]*Guarantee),
		closings:   make(map[int64]string),
	}
}

func (r *memoryRepo) seedSeries(kind SeriesKind, prefix string, year int) {
	r.series[kind] = &SeriesConfig{
		Kind:               kind,
		Prefix:             prefix,
		PadWidth:           6,
		FiscalYear:         year,
		DefaultVATRate:     21,
		DefaultPaymentDays: 30,
	}
}

type repoSnapshot struct {
	series     map[SeriesKind]*SeriesConfig
	invoices   map[int64]*Invoice
	lines      map[int64][]InvoiceLine
	payments   map[int64][]Payment
	guarantees map[int64]*Guarantee
	closings   map[int64]string
	nextID     int64
}

func (r *memoryRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		series:     make(map[SeriesKind]*SeriesConfig, len(r.series)),
		invoices:   make(map[int64]*Invoice, len(r.invoices)),
		lines:      make(map[int64][]InvoiceLine, len(r.lines)),
		payments:   make(map[int64][]Payment, len(r.payments)),
		guarantees: make(map[int64]*Guarantee, len(r.guarantees)),
		closings:   make(map[int64]string, len(r.closings)),
		nextID:     r.nextID,
	}
	for k, v := range r.series {
		cp := *v
		s.series[k] = &cp
	}
	for k, v := range r.invoices {
		cp := *v
		s.invoices[k] = &cp
	}
	for k, v := range r.lines {
		s.lines[k] = append([]InvoiceLine(nil), v...)
	}
	for k, v := range r.payments {
		s.payments[k] = append([]Payment(nil), v...)
	}
	for k, v := range r.guarantees {
		cp := *v
		s.guarantees[k] = &cp
	}
	for k, v := range r.closings {
		s.closings[k] = v
	}
	return s
}

func (r *memoryRepo) restore(s repoSnapshot) {
	r.series = s.series
	r.invoices = s.invoices
	r.lines = s.lines
	r.payments = s.payments
	r.guarantees = s.guarantees
	r.closings = s.closings
	r.nextID = s.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// memoryTx aliases memoryRepo so tx methods are only reachable inside
// WithTx, mirroring the real repository split.
type memoryTx memoryRepo

func (t *memoryTx) GetSeriesConfig(_ context.Context, kind SeriesKind) (*SeriesConfig, error) {
	cfg, ok := t.series[kind]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (t *memoryTx) AdvanceSeriesCounter(_ context.Context, kind SeriesKind, observedYear, observedNumber, newYear, newNumber int) (bool, error) {
	cfg, ok := t.series[kind]
	if !ok || cfg.FiscalYear != observedYear || cfg.LastNumber != observedNumber {
		return false, nil
	}
	cfg.FiscalYear = newYear
	cfg.LastNumber = newNumber
	return true, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	t.nextID++
	inv.ID = t.nextID
	t.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (t *memoryTx) InsertInvoiceLine(_ context.Context, line InvoiceLine) (int64, error) {
	if t.failInsertLine {
		return 0, fmt.Errorf("simulated line insert failure")
	}
	t.nextID++
	line.ID = t.nextID
	t.lines[line.InvoiceID] = append(t.lines[line.InvoiceID], line)
	return line.ID, nil
}

func (t *memoryTx) InsertGuarantee(_ context.Context, g Guarantee) (int64, error) {
	t.nextID++
	g.ID = t.nextID
	t.guarantees[g.ID] = &g
	return g.ID, nil
}

func (t *memoryTx) GetInvoiceForUpdate(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (t *memoryTx) UpdateInvoiceStatus(_ context.Context, id int64, status InvoiceStatus) error {
	inv, ok := t.invoices[id]
	if !ok {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	inv.Status = status
	return nil
}

func (t *memoryTx) UpdateInvoiceBalance(_ context.Context, id int64, paid, pending float64, status InvoiceStatus) error {
	inv, ok := t.invoices[id]
	if !ok {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	inv.PaidToDate = paid
	inv.Pending = pending
	inv.Status = status
	return nil
}

func (t *memoryTx) UpdateDraftInvoice(_ context.Context, inv Invoice) error {
	stored, ok := t.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	inv.Lines = nil
	*stored = inv
	return nil
}

func (t *memoryTx) DeleteInvoiceLines(_ context.Context, invoiceID int64) error {
	delete(t.lines, invoiceID)
	return nil
}

func (t *memoryTx) DeleteInvoiceGuarantees(_ context.Context, invoiceID int64) error {
	for gid, g := range t.guarantees {
		if g.InvoiceID == invoiceID {
			delete(t.guarantees, gid)
		}
	}
	return nil
}

func (t *memoryTx) DeleteInvoice(_ context.Context, id int64) error {
	delete(t.invoices, id)
	delete(t.lines, id)
	for gid, g := range t.guarantees {
		if g.InvoiceID == id {
			delete(t.guarantees, gid)
		}
	}
	return nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	t.nextID++
	p.ID = t.nextID
	t.payments[p.InvoiceID] = append(t.payments[p.InvoiceID], p)
	return p.ID, nil
}

func (t *memoryTx) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	return append([]Payment(nil), t.payments[invoiceID]...), nil
}

func (t *memoryTx) GetGuaranteeForUpdate(_ context.Context, id int64) (*Guarantee, error) {
	g, ok := t.guarantees[id]
	if !ok {
		return nil, fmt.Errorf("%w: guarantee", shared.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (t *memoryTx) UpdateGuaranteeStatus(_ context.Context, id int64, status GuaranteeStatus, releasedAt *time.Time) error {
	g, ok := t.guarantees[id]
	if !ok {
		return fmt.Errorf("%w: guarantee", shared.ErrNotFound)
	}
	g.Status = status
	g.ReleasedAt = releasedAt
	return nil
}

func (t *memoryTx) SetInvoiceGuaranteeReleased(_ context.Context, invoiceID int64) error {
	inv, ok := t.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	inv.GuaranteeReleased = true
	return nil
}

func (t *memoryTx) MarkClosingInvoiced(_ context.Context, closingID, invoiceID int64) (bool, error) {
	if t.closings[closingID] != "PENDING" {
		return false, nil
	}
	t.closings[closingID] = "INVOICED"
	return true, nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	cp := *inv
	cp.Lines = append([]InvoiceLine(nil), r.lines[id]...)
	return &cp, nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.ClientID > 0 && inv.ClientID != req.ClientID {
			continue
		}
		if req.ProjectID > 0 && (inv.ProjectID == nil || *inv.ProjectID != req.ProjectID) {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListOutstanding(_ context.Context) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if (inv.Status == StatusIssued || inv.Status == StatusPartiallyPaid) && inv.Pending > 0 {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[invoiceID]...), nil
}

func (r *memoryRepo) GetGuarantee(_ context.Context, id int64) (*Guarantee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guarantees[id]
	if !ok {
		return nil, fmt.Errorf("%w: guarantee", shared.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (r *memoryRepo) ListGuarantees(_ context.Context, status GuaranteeStatus) ([]Guarantee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Guarantee
	for _, g := range r.guarantees {
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, *g)
	}
	return out, nil
}

func (r *memoryRepo) GetSeriesDefaults(_ context.Context, kind SeriesKind) (*SeriesConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.series[kind]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

// memoryMaster is an in-memory masterdata lookup.
type memoryMaster struct {
	clients  map[int64]*masterdata.Client
	projects map[int64]*masterdata.Project
}

func newMemoryMaster() *memoryMaster {
	return &memoryMaster{
		clients:  make(map[int64]*masterdata.Client),
		projects: make(map[int64]*masterdata.Project),
	}
}

func (m *memoryMaster) GetClient(_ context.Context, id int64) (*masterdata.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return c, nil
}

func (m *memoryMaster) GetProject(_ context.Context, id int64) (*masterdata.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
	}
	return p, nil
}
