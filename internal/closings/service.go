package closings

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/solera-erp/solera-erp/internal/billing"
	"github.com/solera-erp/solera-erp/internal/shared"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Invoicer is the slice of the billing engine the converter needs.
type Invoicer interface {
	CreateFromClosing(ctx context.Context, in billing.ClosingInput) (*billing.Invoice, error)
}

// Service manages monthly closings and their conversion into invoices.
type Service struct {
	repo     RepositoryPort
	master   billing.MasterData
	invoicer Invoicer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a closings service.
func NewService(repo RepositoryPort, master billing.MasterData, invoicer Invoicer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		master:   master,
		invoicer: invoicer,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Create registers a month-end closing in PENDING.
func (s *Service) Create(ctx context.Context, req CreateClosingRequest) (*MonthlyClosing, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	if !periodPattern.MatchString(req.Period) {
		return nil, fmt.Errorf("%w: period must be YYYY-MM", shared.ErrValidation)
	}
	if _, err := s.master.GetClient(ctx, req.ClientID); err != nil {
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

	now := s.now()
	closing := MonthlyClosing{
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		Period:      req.Period,
		Description: req.Description,
		Hours:       req.Hours,
		Amount:      req.Amount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.repo.Insert(ctx, closing)
	if err != nil {
		return nil, err
	}
	closing.ID = id

	s.logger.Info("closing created",
		slog.Int64("closing_id", id),
		slog.String("period", req.Period),
		slog.Float64("amount", req.Amount))
	return &closing, nil
}

// Get returns one closing.
func (s *Service) Get(ctx context.Context, id int64) (*MonthlyClosing, error) {
	return s.repo.Get(ctx, id)
}

// List returns closings matching the filter.
func (s *Service) List(ctx context.Context, req ListClosingsRequest) ([]MonthlyClosing, error) {
	return s.repo.List(ctx, req)
}

// Convert turns a pending closing into an issued invoice. Preconditions
// are checked here; the billing engine owns the transaction that inserts
// the invoice and flips the closing, so a mid-flight state change on the
// closing aborts both.
func (s *Service) Convert(ctx context.Context, id int64) (*billing.Invoice, error) {
	closing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if closing.Status != StatusPending {
		return nil, fmt.Errorf("%w: closing %d is %s, only pending closings convert", shared.ErrStateConflict, id, closing.Status)
	}
	if _, err := s.master.GetClient(ctx, closing.ClientID); err != nil {
		return nil, err
	}
	if closing.ProjectID != nil {
		if _, err := s.master.GetProject(ctx, *closing.ProjectID); err != nil {
			return nil, err
		}
	}

	inv, err := s.invoicer.CreateFromClosing(ctx, billing.ClosingInput{
		ClosingID:   closing.ID,
		ClientID:    closing.ClientID,
		ProjectID:   closing.ProjectID,
		Description: fmt.Sprintf("%s (%s)", closing.Description, closing.Period),
		Hours:       closing.Hours,
		Amount:      closing.Amount,
		IssueDate:   s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("closing converted",
		slog.Int64("closing_id", id),
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.FullNumber))
	return inv, nil
}

// Cancel withdraws a pending closing.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	ok, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		closing, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: closing %d is %s, only pending closings cancel", shared.ErrStateConflict, id, closing.Status)
	}
	s.logger.Info("closing cancelled", slog.Int64("closing_id", id))
	return nil
}
