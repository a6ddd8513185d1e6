package billing

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the billing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Get("/", h.listInvoices)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getInvoice)
			r.Put("/", h.updateInvoice)
			r.Delete("/", h.deleteInvoice)
			r.Post("/issue", h.issueInvoice)
			r.Post("/cancel", h.cancelInvoice)
			r.Post("/duplicate", h.duplicateInvoice)
			r.Post("/payments", h.recordPayment)
			r.Get("/payments", h.listPayments)
		})
	})

	r.Route("/guarantees", func(r chi.Router) {
		r.Get("/", h.listGuarantees)
		r.Post("/{id}/release", h.releaseGuarantee)
	})

	r.Get("/billing/summary", h.billingSummary)
}
