package closings

import "time"

// ClosingStatus enumerates monthly closing states.
type ClosingStatus string

const (
	StatusPending   ClosingStatus = "PENDING"
	StatusInvoiced  ClosingStatus = "INVOICED"
	StatusCancelled ClosingStatus = "CANCELLED"
)

// MonthlyClosing is an agreed month-end figure for a client awaiting
// conversion into an invoice. Once invoiced it carries a back-reference to
// the invoice it produced.
type MonthlyClosing struct {
	ID          int64         `json:"id"`
	ClientID    int64         `json:"client_id"`
	ProjectID   *int64        `json:"project_id,omitempty"`
	Period      string        `json:"period"` // YYYY-MM
	Description string        `json:"description"`
	Hours       float64       `json:"hours"`
	Amount      float64       `json:"amount"`
	Status      ClosingStatus `json:"status"`
	InvoiceID   *int64        `json:"invoice_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CreateClosingRequest registers a month-end figure.
type CreateClosingRequest struct {
	ClientID    int64   `json:"client_id" validate:"required,gt=0"`
	ProjectID   *int64  `json:"project_id,omitempty" validate:"omitempty,gt=0"`
	Period      string  `json:"period" validate:"required,len=7"`
	Description string  `json:"description" validate:"required,max=500"`
	Hours       float64 `json:"hours" validate:"gte=0"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

// ListClosingsRequest filters the closings list.
type ListClosingsRequest struct {
	Status   ClosingStatus `json:"status,omitempty"`
	ClientID int64         `json:"client_id,omitempty"`
	Period   string        `json:"period,omitempty"`
}
