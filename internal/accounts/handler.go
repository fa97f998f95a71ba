package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Handler exposes account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/password/forgot", h.forgot)
	r.Post("/password/reset", h.reset)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	account, err := h.service.Register(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, account, "Account created")
}

func (h *Handler) forgot(w http.ResponseWriter, r *http.Request) {
	var input ResetRequest
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), input); err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "If the email is registered a reset link has been sent")
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var input ResetInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), input); err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Password updated")
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrEmail) {
		h.logger.Error("account email", slog.Any("error", err))
		httpx.Fail(w, http.StatusBadGateway, "Email could not be sent, please try again")
		return
	}
	httpx.RespondError(w, h.logger, err)
}
