package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/solera-erp/solera-erp/internal/billing"
)

// guaranteeReviewAge is how long a guarantee stays retained before the
// weekly reminder flags it for release review. Construction warranty
// periods typically run a year.
const guaranteeReviewAge = 365 * 24 * time.Hour

// GuaranteeReminderJob logs retained guarantees old enough that their
// release should be reviewed by the back office.
type GuaranteeReminderJob struct {
	Billing BillingReader
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewGuaranteeReminderJob initialises the reminder handler.
func NewGuaranteeReminderJob(b BillingReader, logger *slog.Logger) *GuaranteeReminderJob {
	return &GuaranteeReminderJob{
		Billing: b,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reminder scan.
func (j *GuaranteeReminderJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Billing == nil {
		return errors.New("guarantee reminder: handler not configured")
	}
	now := j.clock()

	retained, err := j.Billing.ListGuarantees(ctx, billing.GuaranteeRetained)
	if err != nil {
		j.Logger.Error("guarantee reminder failed", slog.Any("error", err))
		return err
	}

	due := 0
	for _, g := range retained {
		if now.Sub(g.RetainedAt) < guaranteeReviewAge {
			continue
		}
		due++
		j.Logger.Warn("guarantee release due for review",
			slog.Int64("guarantee_id", g.ID),
			slog.Int64("invoice_id", g.InvoiceID),
			slog.Float64("amount", g.Amount),
			slog.Time("retained_at", g.RetainedAt),
		)
	}

	j.Logger.Info("completed guarantee reminder",
		slog.Int("retained", len(retained)),
		slog.Int("due_for_review", due),
	)
	return nil
}
