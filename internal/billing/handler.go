package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solera-erp/solera-erp/internal/platform/httpx"
)

// Handler exposes the billing engine over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a billing handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	result, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListInvoicesRequest{Status: InvoiceStatus(q.Get("status"))}
	req.ClientID, _ = strconv.ParseInt(q.Get("client_id"), 10, 64)
	req.ProjectID, _ = strconv.ParseInt(q.Get("project_id"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	invoices, total, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"total":    total,
	})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req UpdateDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	result, err := h.service.UpdateDraft(r.Context(), id, req)
	if err != nil {
		h.logger.Error("update draft", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id); err != nil {
		h.logger.Error("delete draft", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, err := h.service.IssueInvoice(r.Context(), id)
	if err != nil {
		h.logger.Error("issue invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type duplicateRequest struct {
	IssueDate time.Time `json:"issue_date"`
}

func (h *Handler) duplicateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req duplicateRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	result, err := h.service.DuplicateInvoice(r.Context(), id, req.IssueDate)
	if err != nil {
		h.logger.Error("duplicate invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	req.InvoiceID = id
	if _, err := h.service.RecordPayment(r.Context(), req); err != nil {
		h.logger.Error("record payment", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	// the caller wants the new balance and status, not the receipt
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

type releaseGuaranteeRequest struct {
	ReleaseDate time.Time `json:"release_date"`
}

func (h *Handler) releaseGuarantee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid guarantee id")
		return
	}
	var req releaseGuaranteeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	g, err := h.service.ReleaseGuarantee(r.Context(), id, req.ReleaseDate)
	if err != nil {
		h.logger.Error("release guarantee", slog.Int64("guarantee_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) listGuarantees(w http.ResponseWriter, r *http.Request) {
	status := GuaranteeStatus(r.URL.Query().Get("status"))
	guarantees, err := h.service.ListGuarantees(r.Context(), status)
	if err != nil {
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"guarantees": guarantees})
}

func (h *Handler) billingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.BillingSummary(r.Context())
	if err != nil {
		h.logger.Error("billing summary", slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
