package masterdata

import "time"

// Client is the billing view of a customer: enough to snapshot onto an
// invoice and to resolve references. Full client CRUD lives elsewhere.
type Client struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	TaxID           string    `json:"tax_id"`
	Address         string    `json:"address"`
	PaymentTermDays int       `json:"payment_term_days"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Project references a construction project a certification bills against.
type Project struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ClientID  int64     `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
