package closings

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solera-erp/solera-erp/internal/billing"
	"github.com/solera-erp/solera-erp/internal/masterdata"
	"github.com/solera-erp/solera-erp/internal/shared"
)

type memoryClosingRepo struct {
	closings map[int64]*MonthlyClosing
	nextID   int64
}

func newMemoryClosingRepo() *memoryClosingRepo {
	return &memoryClosingRepo{closings: make(map[int64]*MonthlyClosing)}
}

func (r *memoryClosingRepo) Insert(_ context.Context, c MonthlyClosing) (int64, error) {
	r.nextID++
	c.ID = r.nextID
	r.closings[c.ID] = &c
	return c.ID, nil
}

func (r *memoryClosingRepo) Get(_ context.Context, id int64) (*MonthlyClosing, error) {
	c, ok := r.closings[id]
	if !ok {
		return nil, fmt.Errorf("%w: closing", shared.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r *memoryClosingRepo) List(_ context.Context, req ListClosingsRequest) ([]MonthlyClosing, error) {
	var out []MonthlyClosing
	for _, c := range r.closings {
		if req.Status != "" && c.Status != req.Status {
			continue
		}
		if req.ClientID > 0 && c.ClientID != req.ClientID {
			continue
		}
		if req.Period != "" && c.Period != req.Period {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *memoryClosingRepo) Cancel(_ context.Context, id int64) (bool, error) {
	c, ok := r.closings[id]
	if !ok || c.Status != StatusPending {
		return false, nil
	}
	c.Status = StatusCancelled
	return true, nil
}

type fakeInvoicer struct {
	repo    *memoryClosingRepo
	lastIn  billing.ClosingInput
	fail    error
	invoice billing.Invoice
}

func (f *fakeInvoicer) CreateFromClosing(_ context.Context, in billing.ClosingInput) (*billing.Invoice, error) {
	f.lastIn = in
	if f.fail != nil {
		return nil, f.fail
	}
	// the real builder flips the closing in the same transaction
	if c, ok := f.repo.closings[in.ClosingID]; ok {
		c.Status = StatusInvoiced
		c.InvoiceID = &f.invoice.ID
	}
	inv := f.invoice
	return &inv, nil
}

type fakeMaster struct {
	clients  map[int64]*masterdata.Client
	projects map[int64]*masterdata.Project
}

func (m *fakeMaster) GetClient(_ context.Context, id int64) (*masterdata.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return c, nil
}

func (m *fakeMaster) GetProject(_ context.Context, id int64) (*masterdata.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
	}
	return p, nil
}

func newTestService(t *testing.T) (*Service, *memoryClosingRepo, *fakeInvoicer) {
	t.Helper()
	repo := newMemoryClosingRepo()
	invoicer := &fakeInvoicer{
		repo:    repo,
		invoice: billing.Invoice{ID: 77, FullNumber: "FA000001", Status: billing.StatusIssued},
	}
	master := &fakeMaster{
		clients: map[int64]*masterdata.Client{
			1: {ID: 1, Name: "Construcciones Oeste SL", TaxID: "B12345678"},
		},
		projects: map[int64]*masterdata.Project{
			7: {ID: 7, Code: "OBR-07", ClientID: 1},
		},
	}
	svc := NewService(repo, master, invoicer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, repo, invoicer
}

func validRequest() CreateClosingRequest {
	return CreateClosingRequest{
		ClientID:    1,
		Period:      "2026-02",
		Description: "Servicios de obra",
		Hours:       160,
		Amount:      12000,
	}
}

func TestCreateClosing(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)
	require.Equal(t, "2026-02", c.Period)
	require.NotZero(t, c.ID)
}

func TestCreateClosingValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("bad period", func(t *testing.T) {
		req := validRequest()
		req.Period = "02-2026"
		_, err := svc.Create(ctx, req)
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("month out of range", func(t *testing.T) {
		req := validRequest()
		req.Period = "2026-13"
		_, err := svc.Create(ctx, req)
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("zero amount", func(t *testing.T) {
		req := validRequest()
		req.Amount = 0
		_, err := svc.Create(ctx, req)
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := validRequest()
		req.ClientID = 99
		_, err := svc.Create(ctx, req)
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("project of another client", func(t *testing.T) {
		req := validRequest()
		projectID := int64(7)
		req.ProjectID = &projectID
		req.ClientID = 1
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	})
}

func TestConvertClosing(t *testing.T) {
	svc, repo, invoicer := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	inv, err := svc.Convert(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(77), inv.ID)
	require.Equal(t, created.ID, invoicer.lastIn.ClosingID)
	require.Equal(t, 160.0, invoicer.lastIn.Hours)
	require.Equal(t, 12000.0, invoicer.lastIn.Amount)
	require.Contains(t, invoicer.lastIn.Description, "2026-02")

	after, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, after.Status)
}

func TestConvertClosingNotPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = svc.Convert(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.Convert(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestConvertClosingBuilderFailureKeepsPending(t *testing.T) {
	svc, repo, invoicer := newTestService(t)
	ctx := context.Background()
	invoicer.fail = fmt.Errorf("%w: counter conflict", shared.ErrSequencing)

	created, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.Convert(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrSequencing)

	after, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, after.Status)
}

func TestCancelClosing(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, created.ID))

	err = svc.Cancel(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.Convert(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}
