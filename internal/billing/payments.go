package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// RecordPayment applies a payment to an invoice. The invoice row is locked
// for the duration, the amount is checked against the pending balance, and
// paid/pending are re-derived from the full payment history rather than
// incremented, so a replayed update can never drift the balance.
func (s *Service) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*Payment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}

	payment := Payment{
		Number:    newPaymentNumber(),
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		PaidAt:    req.PaidAt,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
		CreatedAt: s.now(),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusIssued, StatusPartiallyPaid:
		default:
			return fmt.Errorf("%w: cannot record payment on invoice in status %s", shared.ErrStateConflict, inv.Status)
		}
		if req.Amount > inv.Pending {
			return fmt.Errorf("%w: %.2f exceeds pending %.2f on invoice %s",
				shared.ErrOverpayment, req.Amount, inv.Pending, inv.FullNumber)
		}

		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id

		history, err := tx.ListPayments(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		paid, pending := RederiveBalance(inv.Total, history)

		status := StatusPartiallyPaid
		if pending == 0 {
			status = StatusPaid
		}
		return tx.UpdateInvoiceBalance(ctx, req.InvoiceID, paid, pending, status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		slog.String("payment", payment.Number),
		slog.Int64("invoice_id", req.InvoiceID),
		slog.Float64("amount", req.Amount))
	return &payment, nil
}

// newPaymentNumber mints an opaque receipt reference. Payments have no
// legal numbering requirement, so a random identifier is enough.
func newPaymentNumber() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}
