package jobs

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Handler serves queue health for operators.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil inspector reports an empty queue.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type scheduleView struct {
	Task string     `json:"task"`
	Spec string     `json:"spec"`
	Next time.Time  `json:"next"`
	Prev *time.Time `json:"prev,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.OK(w, http.StatusOK, map[string]any{"queue": QueueDefault, "pending": 0}, "")
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Fail(w, http.StatusServiceUnavailable, "Job queue unavailable")
		return
	}
	body := map[string]any{
		"queue":     info.Queue,
		"pending":   info.Pending,
		"active":    info.Active,
		"scheduled": info.Scheduled,
		"failed":    info.Archived,
		"paused":    info.Paused,
	}
	if entries, err := h.inspector.SchedulerEntries(); err == nil {
		schedules := make([]scheduleView, 0, len(entries))
		for _, e := range entries {
			v := scheduleView{Task: e.Task.Type(), Spec: e.Spec, Next: e.Next}
			if !e.Prev.IsZero() {
				prev := e.Prev
				v.Prev = &prev
			}
			schedules = append(schedules, v)
		}
		body["schedules"] = schedules
	}
	httpx.OK(w, http.StatusOK, body, "")
}
