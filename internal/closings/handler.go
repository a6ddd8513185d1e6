package closings

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solera-erp/solera-erp/internal/platform/httpx"
)

// Handler exposes monthly closings over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a closings handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers the closings endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/closings", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/convert", h.convert)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateClosingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	closing, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("create closing", slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, closing)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListClosingsRequest{
		Status: ClosingStatus(q.Get("status")),
		Period: q.Get("period"),
	}
	req.ClientID, _ = strconv.ParseInt(q.Get("client_id"), 10, 64)

	closings, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list closings", slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closings": closings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid closing id")
		return
	}
	closing, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closing)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid closing id")
		return
	}
	inv, err := h.service.Convert(r.Context(), id)
	if err != nil {
		h.logger.Error("convert closing", slog.Int64("closing_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid closing id")
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.logger.Error("cancel closing", slog.Int64("closing_id", id), slog.Any("error", err))
		httpx.ProblemFromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
