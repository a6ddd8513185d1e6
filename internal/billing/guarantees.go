package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// ReleaseGuarantee releases a retained guarantee in full, stamped with the
// caller's release date (zero means now). Only RETAINED guarantees can be
// released; the owning invoice is flagged in the same transaction. Partial
// releases do not exist.
func (s *Service) ReleaseGuarantee(ctx context.Context, id int64, releaseDate time.Time) (*Guarantee, error) {
	var released *Guarantee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGuaranteeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if g.Status != GuaranteeRetained {
			return fmt.Errorf("%w: guarantee is %s, only retained guarantees can be released", shared.ErrStateConflict, g.Status)
		}

		releasedAt := releaseDate
		if releasedAt.IsZero() {
			releasedAt = s.now()
		}
		if err := tx.UpdateGuaranteeStatus(ctx, id, GuaranteeReleased, &releasedAt); err != nil {
			return err
		}
		if err := tx.SetInvoiceGuaranteeReleased(ctx, g.InvoiceID); err != nil {
			return err
		}
		g.Status = GuaranteeReleased
		g.ReleasedAt = &releasedAt
		released = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guarantee released",
		slog.Int64("guarantee_id", released.ID),
		slog.Int64("invoice_id", released.InvoiceID),
		slog.Float64("amount", released.Amount))
	return released, nil
}

// ListGuarantees returns guarantees, optionally filtered by status.
func (s *Service) ListGuarantees(ctx context.Context, status GuaranteeStatus) ([]Guarantee, error) {
	if status != "" && status != GuaranteeRetained && status != GuaranteeReleased && status != GuaranteeClaimed {
		return nil, fmt.Errorf("%w: unknown guarantee status %q", shared.ErrValidation, status)
	}
	return s.repo.ListGuarantees(ctx, status)
}
