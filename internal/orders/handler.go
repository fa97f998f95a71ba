package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler manages order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.Create(r.Context(), input)
	switch {
	case err == nil:
		httpx.OK(w, http.StatusCreated, order, "Order created")
	case errors.Is(err, ErrConfirmationNotSent):
		httpx.OK(w, http.StatusCreated, order, "Order created but the confirmation email could not be sent")
	default:
		httpx.RespondError(w, h.logger, err)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r)
	orders, total, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")), page.Limit(), page.Offset())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.OK(w, http.StatusOK, map[string]any{"orders": orders, "pagination": page.Meta(total)}, "")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, h.logger, ErrNotFound)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, order, "")
}
