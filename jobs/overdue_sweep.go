package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/solera-erp/solera-erp/internal/billing"
)

// BillingReader is the slice of the billing service the sweeps consume.
type BillingReader interface {
	ListInvoices(ctx context.Context, req billing.ListInvoicesRequest) ([]billing.Invoice, int, error)
	ListGuarantees(ctx context.Context, status billing.GuaranteeStatus) ([]billing.Guarantee, error)
	RefreshSummary(ctx context.Context) (*billing.Summary, error)
}

// OverdueSweepJob refreshes the cached billing summary and logs every
// invoice currently past due. Overdue is derived at read time, so the
// sweep writes nothing to the invoices table.
type OverdueSweepJob struct {
	Billing BillingReader
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewOverdueSweepJob initialises the sweep handler.
func NewOverdueSweepJob(b BillingReader, logger *slog.Logger) *OverdueSweepJob {
	return &OverdueSweepJob{
		Billing: b,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Billing == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	start := j.clock()

	// the list endpoint pages; walk every page so no overdue invoice is missed
	const pageSize = 500
	var overdue []billing.Invoice
	for offset := 0; ; offset += pageSize {
		page, total, err := j.Billing.ListInvoices(ctx, billing.ListInvoicesRequest{
			Status: billing.StatusOverdue,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			j.Logger.Error("overdue sweep failed", slog.Any("error", err))
			return err
		}
		overdue = append(overdue, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	for _, inv := range overdue {
		j.Logger.Warn("invoice overdue",
			slog.Int64("invoice_id", inv.ID),
			slog.String("number", inv.FullNumber),
			slog.String("client", inv.ClientName),
			slog.Float64("pending", inv.Pending),
			slog.Time("due_date", inv.DueDate),
		)
	}

	summary, err := j.Billing.RefreshSummary(ctx)
	if err != nil {
		j.Logger.Error("summary refresh failed", slog.Any("error", err))
		return err
	}

	j.Logger.Info("completed overdue sweep",
		slog.Int("overdue", len(overdue)),
		slog.Float64("outstanding_total", summary.OutstandingTotal),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
