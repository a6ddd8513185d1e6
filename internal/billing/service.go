package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/solera-erp/solera-erp/internal/masterdata"
	"github.com/solera-erp/solera-erp/internal/shared"
)

// MasterData resolves client and project references at invoice creation.
type MasterData interface {
	GetClient(ctx context.Context, id int64) (*masterdata.Client, error)
	GetProject(ctx context.Context, id int64) (*masterdata.Project, error)
}

// Service implements invoice building, lifecycle, payments and guarantees.
type Service struct {
	repo     RepositoryPort
	master   MasterData
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	summaryCache *SummaryCache
}

// NewService constructs a billing service.
func NewService(repo RepositoryPort, master MasterData, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		master:   master,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// CreateInvoice validates a draft request, resolves references, draws the
// next series number and persists invoice, lines and guarantee retention as
// one transaction. The created invoice starts in DRAFT.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	if req.Type == TypeRectificative && req.RectifiesID == nil {
		return nil, fmt.Errorf("%w: rectificative invoice requires rectifies_id", shared.ErrValidation)
	}
	if req.Type != TypeRectificative && req.RectifiesID != nil {
		return nil, fmt.Errorf("%w: rectifies_id only allowed on rectificative invoices", shared.ErrValidation)
	}
	if req.HasGuarantee && req.GuaranteeRate != nil && *req.GuaranteeRate == 0 {
		return nil, fmt.Errorf("%w: guarantee flagged with a zero rate", shared.ErrValidation)
	}

	client, err := s.master.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != nil {
		project, err := s.master.GetProject(ctx, *req.ProjectID)
		if err != nil {
			return nil, err
		}
		if project.ClientID != req.ClientID {
			return nil, fmt.Errorf("%w: project %d does not belong to client %d", shared.ErrValidation, project.ID, req.ClientID)
		}
	}
	if req.RectifiesID != nil {
		original, err := s.repo.GetInvoice(ctx, *req.RectifiesID)
		if err != nil {
			return nil, err
		}
		if original.Status == StatusDraft {
			return nil, fmt.Errorf("%w: cannot rectify a draft invoice", shared.ErrValidation)
		}
	}

	kind := req.Type.Series()
	defaults, err := s.repo.GetSeriesDefaults(ctx, kind)
	if err != nil {
		return nil, err
	}
	if defaults == nil {
		return nil, fmt.Errorf("%w: no configuration for series %s", shared.ErrSequencing, kind)
	}

	vatRate := defaults.DefaultVATRate
	if req.VATRate != nil {
		vatRate = *req.VATRate
	}
	reverseCharge := req.Type == TypeISP
	if reverseCharge {
		vatRate = 0
	}
	retentionRate := defaults.DefaultRetentionRate
	if req.RetentionRate != nil {
		retentionRate = *req.RetentionRate
	}
	guaranteeRate := 0.0
	if req.HasGuarantee {
		guaranteeRate = defaults.DefaultGuaranteeRate
		if req.GuaranteeRate != nil {
			guaranteeRate = *req.GuaranteeRate
		}
	}
	termDays := defaults.DefaultPaymentDays
	if client.PaymentTermDays > 0 {
		termDays = client.PaymentTermDays
	}
	if req.PaymentTermDays != nil {
		termDays = *req.PaymentTermDays
	}

	lines, subtotals, rectificationSuggested := buildLines(req.Lines, vatRate, reverseCharge)

	totals := ComputeTotals(TotalsInput{
		LineSubtotals: subtotals,
		VATRate:       vatRate,
		RetentionRate: retentionRate,
		GuaranteeRate: guaranteeRate,
		HasGuarantee:  req.HasGuarantee,
		ReverseCharge: reverseCharge,
	})

	now := s.now()
	fiscalYear := shared.FiscalYear(req.IssueDate)
	inv := Invoice{
		FiscalYear:        fiscalYear,
		Type:              req.Type,
		RectifiesID:       req.RectifiesID,
		ClientID:          client.ID,
		ClientName:        client.Name,
		ClientTaxID:       client.TaxID,
		ClientAddress:     client.Address,
		ProjectID:         req.ProjectID,
		IssueDate:         req.IssueDate,
		DueDate:           shared.DueDate(req.IssueDate, termDays),
		PaymentTermDays:   termDays,
		Subtotal:          totals.Subtotal,
		VATRate:           vatRate,
		VATAmount:         totals.VATAmount,
		RetentionRate:     retentionRate,
		RetentionAmount:   totals.RetentionAmount,
		GuaranteeRate:     guaranteeRate,
		GuaranteeAmount:   totals.GuaranteeAmount,
		Total:             totals.Total,
		PaidToDate:        0,
		Pending:           clampPending(totals.Total),
		Status:            StatusDraft,
		HasGuarantee:      req.HasGuarantee,
		GuaranteeReleased: false,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := s.persistInvoice(ctx, inv, lines)
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		slog.Int64("invoice_id", created.ID),
		slog.String("number", created.FullNumber),
		slog.String("type", string(created.Type)),
		slog.Float64("total", created.Total))
	return &CreateInvoiceResult{Invoice: created, RectificationSuggested: rectificationSuggested}, nil
}

// buildLines reconciles request lines into invoice lines under the resolved
// VAT regime. The second return carries per-line net amounts for the totals
// calculator; the flag reports any negative current quantity.
func buildLines(reqLines []CreateInvoiceLine, vatRate float64, reverseCharge bool) ([]InvoiceLine, []float64, bool) {
	lines := make([]InvoiceLine, 0, len(reqLines))
	subtotals := make([]float64, 0, len(reqLines))
	suggested := false
	for i, l := range reqLines {
		current := ReconcileQuantity(l.OriginQty, l.PreviousQty)
		if current < 0 {
			suggested = true
		}
		sub := LineSubtotal(current, l.UnitPrice, l.DiscountRate)
		order := l.LineOrder
		if order == 0 {
			order = i + 1
		}
		lines = append(lines, InvoiceLine{
			LineOrder:    order,
			Description:  l.Description,
			Unit:         l.Unit,
			OriginQty:    l.OriginQty,
			PreviousQty:  l.PreviousQty,
			CurrentQty:   current,
			UnitPrice:    l.UnitPrice,
			DiscountRate: l.DiscountRate,
			Subtotal:     sub,
			VATAmount:    LineVAT(sub, vatRate, reverseCharge),
		})
		subtotals = append(subtotals, sub)
	}
	return lines, subtotals, suggested
}

// clampPending keeps pending = total − paid at or above zero. A negative
// rectificative total is a credit; nothing is collectible on it.
func clampPending(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// persistInvoice draws the series number and writes invoice, lines and
// guarantee retention atomically.
func (s *Service) persistInvoice(ctx context.Context, inv Invoice, lines []InvoiceLine) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		num, err := NextNumber(ctx, tx, inv.Type.Series(), inv.FiscalYear)
		if err != nil {
			return err
		}
		inv.Series = num.Series
		inv.Number = num.Number
		inv.FullNumber = num.Formatted

		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id

		for i := range lines {
			lines[i].InvoiceID = id
			lineID, err := tx.InsertInvoiceLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}

		if inv.HasGuarantee && inv.GuaranteeAmount > 0 {
			_, err := tx.InsertGuarantee(ctx, Guarantee{
				InvoiceID:  id,
				Amount:     inv.GuaranteeAmount,
				RetainedAt: inv.IssueDate,
				Status:     GuaranteeRetained,
				CreatedAt:  inv.CreatedAt,
				UpdatedAt:  inv.UpdatedAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

// IssueInvoice moves a draft to ISSUED. Monetary fields were frozen at
// creation; issuance only flips the status.
func (s *Service) IssueInvoice(ctx context.Context, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: cannot issue invoice in status %s", shared.ErrStateConflict, inv.Status)
		}
		return tx.UpdateInvoiceStatus(ctx, id, StatusIssued)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice issued", slog.Int64("invoice_id", id))
	return s.GetInvoice(ctx, id)
}

// CancelInvoice administratively cancels an invoice. Paid and already
// cancelled invoices cannot be cancelled; payments recorded against a
// partially paid invoice are kept for the audit trail.
func (s *Service) CancelInvoice(ctx context.Context, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusDraft, StatusIssued, StatusPartiallyPaid:
			return tx.UpdateInvoiceStatus(ctx, id, StatusCancelled)
		default:
			return fmt.Errorf("%w: cannot cancel invoice in status %s", shared.ErrStateConflict, inv.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice cancelled", slog.Int64("invoice_id", id))
	return s.GetInvoice(ctx, id)
}

// DeleteDraft removes a draft invoice with its lines and guarantee. Issued
// invoices are never physically deleted; the drawn number stays consumed.
func (s *Service) DeleteDraft(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: only draft invoices can be deleted", shared.ErrStateConflict)
		}
		return tx.DeleteInvoice(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("draft invoice deleted", slog.Int64("invoice_id", id))
	return nil
}

// UpdateDraft rewrites a draft's lines and editable header and recomputes
// its totals. The drawn number, type and client snapshot are frozen at
// creation; anything past DRAFT is immutable.
func (s *Service) UpdateDraft(ctx context.Context, id int64, req UpdateDraftRequest) (*CreateInvoiceResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	if req.HasGuarantee && req.GuaranteeRate != nil && *req.GuaranteeRate == 0 {
		return nil, fmt.Errorf("%w: guarantee flagged with a zero rate", shared.ErrValidation)
	}

	var updated *Invoice
	var rectificationSuggested bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: only draft invoices are editable", shared.ErrStateConflict)
		}

		issueDate := inv.IssueDate
		if !req.IssueDate.IsZero() {
			issueDate = req.IssueDate
		}
		// the number was drawn for the creation-time fiscal year
		if shared.FiscalYear(issueDate) != inv.FiscalYear {
			return fmt.Errorf("%w: issue date cannot move invoice %s to another fiscal year", shared.ErrValidation, inv.FullNumber)
		}

		vatRate := inv.VATRate
		if req.VATRate != nil {
			vatRate = *req.VATRate
		}
		reverseCharge := inv.Type == TypeISP
		if reverseCharge {
			vatRate = 0
		}
		retentionRate := inv.RetentionRate
		if req.RetentionRate != nil {
			retentionRate = *req.RetentionRate
		}
		guaranteeRate := 0.0
		if req.HasGuarantee {
			guaranteeRate = inv.GuaranteeRate
			if req.GuaranteeRate != nil {
				guaranteeRate = *req.GuaranteeRate
			}
			if guaranteeRate == 0 {
				cfg, err := tx.GetSeriesConfig(ctx, inv.Type.Series())
				if err != nil {
					return err
				}
				if cfg != nil {
					guaranteeRate = cfg.DefaultGuaranteeRate
				}
			}
		}
		termDays := inv.PaymentTermDays
		if req.PaymentTermDays != nil {
			termDays = *req.PaymentTermDays
		}

		lines, subtotals, suggested := buildLines(req.Lines, vatRate, reverseCharge)
		totals := ComputeTotals(TotalsInput{
			LineSubtotals: subtotals,
			VATRate:       vatRate,
			RetentionRate: retentionRate,
			GuaranteeRate: guaranteeRate,
			HasGuarantee:  req.HasGuarantee,
			ReverseCharge: reverseCharge,
		})

		now := s.now()
		inv.IssueDate = issueDate
		inv.DueDate = shared.DueDate(issueDate, termDays)
		inv.PaymentTermDays = termDays
		inv.Subtotal = totals.Subtotal
		inv.VATRate = vatRate
		inv.VATAmount = totals.VATAmount
		inv.RetentionRate = retentionRate
		inv.RetentionAmount = totals.RetentionAmount
		inv.GuaranteeRate = guaranteeRate
		inv.GuaranteeAmount = totals.GuaranteeAmount
		inv.Total = totals.Total
		inv.Pending = clampPending(totals.Total)
		inv.HasGuarantee = req.HasGuarantee
		inv.Notes = req.Notes
		inv.UpdatedAt = now

		if err := tx.DeleteInvoiceLines(ctx, id); err != nil {
			return err
		}
		for i := range lines {
			lines[i].InvoiceID = id
			lineID, err := tx.InsertInvoiceLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}

		// a draft's retention row tracks its current totals
		if err := tx.DeleteInvoiceGuarantees(ctx, id); err != nil {
			return err
		}
		if req.HasGuarantee && totals.GuaranteeAmount > 0 {
			_, err := tx.InsertGuarantee(ctx, Guarantee{
				InvoiceID:  id,
				Amount:     totals.GuaranteeAmount,
				RetainedAt: issueDate,
				Status:     GuaranteeRetained,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.UpdateDraftInvoice(ctx, *inv); err != nil {
			return err
		}
		inv.Lines = lines
		updated = inv
		rectificationSuggested = suggested
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft invoice updated",
		slog.Int64("invoice_id", updated.ID),
		slog.Float64("total", updated.Total))
	return &CreateInvoiceResult{Invoice: updated, RectificationSuggested: rectificationSuggested}, nil
}

// DuplicateInvoice starts next month's draft from an existing invoice:
// same client, project and rates, lines re-seeded so previous carries the
// old cumulative reading and current starts at zero.
func (s *Service) DuplicateInvoice(ctx context.Context, id int64, issueDate time.Time) (*CreateInvoiceResult, error) {
	src, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Type == TypeRectificative {
		return nil, fmt.Errorf("%w: rectificative invoices cannot be duplicated", shared.ErrValidation)
	}
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	req := CreateInvoiceRequest{
		ClientID:        src.ClientID,
		ProjectID:       src.ProjectID,
		Type:            src.Type,
		IssueDate:       issueDate,
		PaymentTermDays: &src.PaymentTermDays,
		VATRate:         &src.VATRate,
		RetentionRate:   &src.RetentionRate,
		HasGuarantee:    src.HasGuarantee,
		Notes:           src.Notes,
		Lines:           DuplicateLines(src.Lines),
	}
	if src.HasGuarantee {
		req.GuaranteeRate = &src.GuaranteeRate
	}
	return s.CreateInvoice(ctx, req)
}

// ClosingInput carries a validated monthly closing into the invoice
// builder. The closings service owns the preconditions; the builder owns
// atomicity of invoice insert plus closing flip.
type ClosingInput struct {
	ClosingID   int64
	ClientID    int64
	ProjectID   *int64
	Description string
	Hours       float64
	Amount      float64
	IssueDate   time.Time
}

// CreateFromClosing converts a monthly closing into an issued invoice with
// one synthetic line (quantity = hours, unit price = amount/hours). The
// closing is marked INVOICED in the same transaction; a closing that is no
// longer pending aborts the whole operation.
func (s *Service) CreateFromClosing(ctx context.Context, in ClosingInput) (*Invoice, error) {
	client, err := s.master.GetClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	defaults, err := s.repo.GetSeriesDefaults(ctx, SeriesNormal)
	if err != nil {
		return nil, err
	}
	if defaults == nil {
		return nil, fmt.Errorf("%w: no configuration for series %s", shared.ErrSequencing, SeriesNormal)
	}

	qty := in.Hours
	price := ClosingUnitPrice(in.Amount, in.Hours)
	if qty <= 0 {
		qty = 1
		price = in.Amount
	}
	sub := LineSubtotal(qty, price, 0)
	vatRate := defaults.DefaultVATRate
	line := InvoiceLine{
		LineOrder:   1,
		Description: in.Description,
		Unit:        "h",
		OriginQty:   qty,
		CurrentQty:  qty,
		UnitPrice:   price,
		Subtotal:    sub,
		VATAmount:   LineVAT(sub, vatRate, false),
	}
	totals := ComputeTotals(TotalsInput{
		LineSubtotals: []float64{sub},
		VATRate:       vatRate,
	})

	termDays := defaults.DefaultPaymentDays
	if client.PaymentTermDays > 0 {
		termDays = client.PaymentTermDays
	}
	issueDate := in.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	now := s.now()
	inv := Invoice{
		FiscalYear:      shared.FiscalYear(issueDate),
		Type:            TypeNormal,
		ClientID:        client.ID,
		ClientName:      client.Name,
		ClientTaxID:     client.TaxID,
		ClientAddress:   client.Address,
		ProjectID:       in.ProjectID,
		IssueDate:       issueDate,
		DueDate:         shared.DueDate(issueDate, termDays),
		PaymentTermDays: termDays,
		Subtotal:        totals.Subtotal,
		VATRate:         vatRate,
		VATAmount:       totals.VATAmount,
		Total:           totals.Total,
		Pending:         clampPending(totals.Total),
		Status:          StatusIssued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		num, err := NextNumber(ctx, tx, SeriesNormal, inv.FiscalYear)
		if err != nil {
			return err
		}
		inv.Series = num.Series
		inv.Number = num.Number
		inv.FullNumber = num.Formatted

		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		line.InvoiceID = id
		if _, err := tx.InsertInvoiceLine(ctx, line); err != nil {
			return err
		}

		ok, err := tx.MarkClosingInvoiced(ctx, in.ClosingID, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: closing %d is no longer pending", shared.ErrStateConflict, in.ClosingID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.Lines = []InvoiceLine{line}

	s.logger.Info("closing converted to invoice",
		slog.Int64("closing_id", in.ClosingID),
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.FullNumber))
	return &inv, nil
}

// GetInvoice returns an invoice with lines, status derived as of now.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Status = inv.EffectiveStatus(s.now())
	return inv, nil
}

// ListInvoices returns a filtered page of invoices with derived statuses.
// The OVERDUE filter has no stored counterpart; it narrows the outstanding
// set by due date instead.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	now := s.now()

	if req.Status == StatusOverdue {
		outstanding, err := s.repo.ListOutstanding(ctx)
		if err != nil {
			return nil, 0, err
		}
		var overdue []Invoice
		for _, inv := range outstanding {
			if req.ClientID > 0 && inv.ClientID != req.ClientID {
				continue
			}
			if req.ProjectID > 0 && (inv.ProjectID == nil || *inv.ProjectID != req.ProjectID) {
				continue
			}
			if inv.EffectiveStatus(now) != StatusOverdue {
				continue
			}
			inv.Status = StatusOverdue
			overdue = append(overdue, inv)
		}
		// paged in memory with the repository's ordering and default limit
		sort.Slice(overdue, func(i, j int) bool {
			if overdue[i].DueDate.Equal(overdue[j].DueDate) {
				return overdue[i].ID < overdue[j].ID
			}
			return overdue[i].DueDate.Before(overdue[j].DueDate)
		})
		total := len(overdue)
		if req.Offset >= total {
			return nil, total, nil
		}
		overdue = overdue[req.Offset:]
		limit := req.Limit
		if limit <= 0 {
			limit = 50
		}
		if len(overdue) > limit {
			overdue = overdue[:limit]
		}
		return overdue, total, nil
	}

	invoices, total, err := s.repo.ListInvoices(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	for i := range invoices {
		invoices[i].Status = invoices[i].EffectiveStatus(now)
	}
	return invoices, total, nil
}

// ListPayments returns the payment history of one invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}
