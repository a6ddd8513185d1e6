package billing

import (
	"time"
)

// ============================================================================
// STATUSES & SERIES
// ============================================================================

// InvoiceStatus enumerates stored invoice lifecycle states. OVERDUE is
// derived at read time and never written to the invoices table.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusIssued        InvoiceStatus = "ISSUED"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// InvoiceType distinguishes the VAT regime and legal series of an invoice.
type InvoiceType string

const (
	// TypeNormal is a regular VAT invoice.
	TypeNormal InvoiceType = "NORMAL"
	// TypeISP is a reverse-charge invoice: the customer accounts for VAT,
	// the invoice carries none.
	TypeISP InvoiceType = "ISP"
	// TypeRectificative corrects a previously issued invoice.
	TypeRectificative InvoiceType = "RECTIFICATIVE"
)

// SeriesKind selects the legal numbering series.
type SeriesKind string

const (
	SeriesNormal        SeriesKind = "NORMAL"
	SeriesRectificative SeriesKind = "RECTIFICATIVE"
)

// Series returns the numbering series an invoice type draws from.
// ISP invoices share the normal series; only rectificative invoices
// have their own.
func (t InvoiceType) Series() SeriesKind {
	if t == TypeRectificative {
		return SeriesRectificative
	}
	return SeriesNormal
}

// GuaranteeStatus enumerates guarantee retention states.
type GuaranteeStatus string

const (
	GuaranteeRetained GuaranteeStatus = "RETAINED"
	GuaranteeReleased GuaranteeStatus = "RELEASED"
	GuaranteeClaimed  GuaranteeStatus = "CLAIMED"
)

// ============================================================================
// MODELS
// ============================================================================

// SeriesConfig is the per-series, per-fiscal-year numbering counter plus
// the company-wide billing defaults. One row per series and year.
type SeriesConfig struct {
	Kind                 SeriesKind `json:"kind"`
	Prefix               string     `json:"prefix"`
	PadWidth             int        `json:"pad_width"`
	FiscalYear           int        `json:"fiscal_year"`
	LastNumber           int        `json:"last_number"`
	DefaultVATRate       float64    `json:"default_vat_rate"`
	DefaultRetentionRate float64    `json:"default_retention_rate"`
	DefaultGuaranteeRate float64    `json:"default_guarantee_rate"`
	DefaultPaymentDays   int        `json:"default_payment_days"`
}

// Invoice model. Monetary fields are derived by the totals calculator and
// frozen at issuance; paid/pending are maintained exclusively by the
// payment ledger.
type Invoice struct {
	ID         int64       `json:"id"`
	Series     string      `json:"series"`
	Number     int         `json:"number"`
	FullNumber string      `json:"full_number"`
	FiscalYear int         `json:"fiscal_year"`
	Type       InvoiceType `json:"type"`
	// RectifiesID links a rectificative invoice to the original.
	RectifiesID *int64 `json:"rectifies_id,omitempty"`

	ClientID      int64  `json:"client_id"`
	ClientName    string `json:"client_name"`
	ClientTaxID   string `json:"client_tax_id"`
	ClientAddress string `json:"client_address"`
	ProjectID     *int64 `json:"project_id,omitempty"`

	IssueDate       time.Time `json:"issue_date"`
	DueDate         time.Time `json:"due_date"`
	PaymentTermDays int       `json:"payment_term_days"`

	Subtotal        float64 `json:"subtotal"`
	VATRate         float64 `json:"vat_rate"`
	VATAmount       float64 `json:"vat_amount"`
	RetentionRate   float64 `json:"retention_rate"`
	RetentionAmount float64 `json:"retention_amount"`
	GuaranteeRate   float64 `json:"guarantee_rate"`
	GuaranteeAmount float64 `json:"guarantee_amount"`
	Total           float64 `json:"total"`
	PaidToDate      float64 `json:"paid_to_date"`
	Pending         float64 `json:"pending"`

	Status            InvoiceStatus `json:"status"`
	HasGuarantee      bool          `json:"has_guarantee"`
	GuaranteeReleased bool          `json:"guarantee_released"`
	Notes             *string       `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []InvoiceLine `json:"lines,omitempty"`
}

// EffectiveStatus derives the caller-visible status at asOf. Issued and
// partially paid invoices past their due date with a pending balance read
// as overdue; nothing is persisted.
func (i *Invoice) EffectiveStatus(asOf time.Time) InvoiceStatus {
	if (i.Status == StatusIssued || i.Status == StatusPartiallyPaid) &&
		i.Pending > 0 && i.DueDate.Before(asOf.Truncate(24*time.Hour)) {
		return StatusOverdue
	}
	return i.Status
}

// InvoiceLine model. Origin/previous/current implement
// certification-to-origin progress billing: origin is the cumulative
// reading to date, previous the cumulative figure already invoiced, and
// current the difference billed this period.
type InvoiceLine struct {
	ID           int64   `json:"id"`
	InvoiceID    int64   `json:"invoice_id"`
	LineOrder    int     `json:"line_order"`
	Description  string  `json:"description"`
	Unit         string  `json:"unit"`
	OriginQty    float64 `json:"origin_quantity"`
	PreviousQty  float64 `json:"previous_quantity"`
	CurrentQty   float64 `json:"current_quantity"`
	UnitPrice    float64 `json:"unit_price"`
	DiscountRate float64 `json:"discount_rate"`
	Subtotal     float64 `json:"subtotal"`
	VATAmount    float64 `json:"vat_amount"`
}

// Payment model.
type Payment struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	InvoiceID int64     `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
	Method    string    `json:"method"`
	Reference *string   `json:"reference,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Guarantee model. Created atomically with the invoice when retention
// applies; released (or claimed) later as a whole, never partially.
type Guarantee struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     float64         `json:"amount"`
	RetainedAt time.Time       `json:"retained_at"`
	Status     GuaranteeStatus `json:"status"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ============================================================================
// REQUESTS
// ============================================================================

// CreateInvoiceRequest is a fully validated draft: incomplete form state is
// rejected at this boundary, never propagated into the calculator.
type CreateInvoiceRequest struct {
	ClientID        int64               `json:"client_id" validate:"required,gt=0"`
	ProjectID       *int64              `json:"project_id,omitempty" validate:"omitempty,gt=0"`
	Type            InvoiceType         `json:"type" validate:"required,oneof=NORMAL ISP RECTIFICATIVE"`
	RectifiesID     *int64              `json:"rectifies_id,omitempty" validate:"omitempty,gt=0"`
	IssueDate       time.Time           `json:"issue_date" validate:"required"`
	PaymentTermDays *int                `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	VATRate         *float64            `json:"vat_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	RetentionRate   *float64            `json:"retention_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	HasGuarantee    bool                `json:"has_guarantee"`
	GuaranteeRate   *float64            `json:"guarantee_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Notes           *string             `json:"notes,omitempty"`
	Lines           []CreateInvoiceLine `json:"lines" validate:"required,min=1,dive"`
}

// CreateInvoiceLine carries one progress-billing line of a draft.
type CreateInvoiceLine struct {
	Description  string  `json:"description" validate:"required,max=500"`
	Unit         string  `json:"unit" validate:"max=20"`
	OriginQty    float64 `json:"origin_quantity"`
	PreviousQty  float64 `json:"previous_quantity"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	DiscountRate float64 `json:"discount_rate" validate:"gte=0,lte=100"`
	LineOrder    int     `json:"line_order" validate:"gte=0"`
}

// UpdateDraftRequest rewrites a draft's editable header and lines. The
// drawn number, type and client snapshot stay as created; a zero issue
// date keeps the current one.
type UpdateDraftRequest struct {
	IssueDate       time.Time           `json:"issue_date,omitempty"`
	PaymentTermDays *int                `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	VATRate         *float64            `json:"vat_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	RetentionRate   *float64            `json:"retention_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	HasGuarantee    bool                `json:"has_guarantee"`
	GuaranteeRate   *float64            `json:"guarantee_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Notes           *string             `json:"notes,omitempty"`
	Lines           []CreateInvoiceLine `json:"lines" validate:"required,min=1,dive"`
}

// RecordPaymentRequest applies a payment against an invoice.
type RecordPaymentRequest struct {
	InvoiceID int64     `json:"-"`
	Amount    float64   `json:"amount" validate:"required,gt=0"`
	PaidAt    time.Time `json:"date" validate:"required"`
	Method    string    `json:"method" validate:"required,max=50"`
	Reference *string   `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes     *string   `json:"notes,omitempty"`
}

// ListInvoicesRequest filters the invoice list.
type ListInvoicesRequest struct {
	Status    InvoiceStatus `json:"status,omitempty"`
	ClientID  int64         `json:"client_id,omitempty"`
	ProjectID int64         `json:"project_id,omitempty"`
	Limit     int           `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int           `json:"offset" validate:"gte=0"`
}

// CreateInvoiceResult pairs the created invoice with advisory flags the
// operator should see.
type CreateInvoiceResult struct {
	Invoice *Invoice `json:"invoice"`
	// RectificationSuggested is set when any line bills a negative current
	// quantity (a downward revision of the certified origin reading).
	RectificationSuggested bool `json:"rectification_suggested,omitempty"`
}
