package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes purchase order and goods receipt endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.createPO)
		r.Post("/batch", h.runBatch)
		r.Get("/{id}", h.showPO)
		r.Post("/{id}/email", h.resendEmail)
		r.Get("/{id}/grns", h.listGRNs)
		r.Post("/{id}/grns", h.createGRN)
		r.Post("/{id}/grns/preview", h.previewGRN)
	})
	r.Get("/grns/{id}", h.showGRN)
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunBatch(r.Context())
	switch {
	case errors.Is(err, ErrBatchInProgress):
		httpx.Fail(w, http.StatusConflict, "A purchase batch is already running")
	case err != nil:
		httpx.RespondError(w, h.logger, err)
	case len(result.PurchaseOrders) == 0:
		httpx.OK(w, http.StatusOK, result, "No pending orders")
	case len(result.Failed) > 0:
		httpx.OK(w, http.StatusOK, result, "Purchase orders created; some supplier emails failed")
	default:
		httpx.OK(w, http.StatusOK, result, "Purchase orders created")
	}
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var input CreatePOInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	switch {
	case err == nil:
		httpx.OK(w, http.StatusCreated, po, "Purchase order created")
	case errors.Is(err, ErrEmailNotSent):
		httpx.OK(w, http.StatusCreated, po, "Purchase order created but the supplier email could not be sent")
	default:
		httpx.RespondError(w, h.logger, err)
	}
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r)
	q := r.URL.Query()
	filters := ListFilters{Status: POStatus(q.Get("status")), Supplier: q.Get("supplier"), Search: q.Get("search")}
	if v := q.Get("email_sent"); v != "" {
		sent, err := strconv.ParseBool(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "email_sent must be true or false")
			return
		}
		filters.EmailSent = &sent
	}
	pos, total, err := h.service.ListPOs(r.Context(), page.Limit(), page.Offset(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.OK(w, http.StatusOK, map[string]any{"purchase_orders": pos, "pagination": page.Meta(total)}, "")
}

func (h *Handler) showPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, po, "")
}

func (h *Handler) resendEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	po, err := h.service.ResendPurchaseOrderEmail(r.Context(), id)
	switch {
	case err == nil:
		httpx.OK(w, http.StatusOK, po, "Supplier email sent")
	case errors.Is(err, ErrEmailNotSent):
		httpx.Fail(w, http.StatusBadGateway, "Supplier email could not be sent")
	default:
		httpx.RespondError(w, h.logger, err)
	}
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	grns, err := h.service.ListGRNs(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if grns == nil {
		grns = []GRNRecord{}
	}
	httpx.OK(w, http.StatusOK, grns, "")
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	input, ok := h.grnInput(w, r)
	if !ok {
		return
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, grn, "Goods received")
}

func (h *Handler) previewGRN(w http.ResponseWriter, r *http.Request) {
	input, ok := h.grnInput(w, r)
	if !ok {
		return
	}
	grn, err := h.service.PreviewGoodsReceipt(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, grn, "")
}

func (h *Handler) showGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	grn, err := h.service.GetGRN(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, grn, "")
}

func (h *Handler) grnInput(w http.ResponseWriter, r *http.Request) (CreateGRNInput, bool) {
	id, ok := h.id(w, r)
	if !ok {
		return CreateGRNInput{}, false
	}
	var input CreateGRNInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, h.logger, err)
			return CreateGRNInput{}, false
		}
	}
	input.POID = id
	return input, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, h.logger, ErrNotFound)
		return 0, false
	}
	return id, true
}
