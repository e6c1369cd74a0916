package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/opsnotify/admin-alerting/internal/api/middleware"
	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/service"
)

// AlertHandler is the intake surface for producers raising events.
type AlertHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewAlertHandler(svc *service.NotificationService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// TriggerRequest is the intake payload for POST /api/v1/alerts.
type TriggerRequest struct {
	Event  domain.Event   `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	Source string         `json:"source"`
	// Category scopes throttling; producers in different subsystems raising
	// the same event type do not suppress each other.
	Category string `json:"category,omitempty"`
}

// Trigger handles POST /api/v1/alerts
//
// @Summary     Raise an administrative alert event
// @Tags        alerts
// @Accept      json
// @Produce     json
// @Param       body  body      TriggerRequest  true  "Event payload"
// @Success     202   {object}  map[string]string
// @Success     200   {object}  map[string]string  "Throttled: suppressed, not an error"
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/alerts [post]
func (h *AlertHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Event.Validate(); err != nil {
		mapError(w, err)
		return
	}

	category := req.Category
	if category == "" {
		category = req.Source
	}
	if h.svc.ShouldThrottle(category, req.Event.Type) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "throttled"})
		return
	}
	// Recovery events reopen the window so the next incident alerts again.
	if req.Event.Type == domain.EventServiceRecovered {
		h.svc.ResetThrottle(category, domain.EventServiceDown)
	}

	correlationID := apimw.GetCorrelationID(r.Context())
	if err := h.svc.TriggerNotification(r.Context(), req.Event, req.Data, req.Source, correlationID); err != nil {
		h.logger.Warn("trigger alert failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "correlation_id": correlationID})
}

// SendTest handles POST /api/v1/admins/{id}/test-notification
//
// @Summary  Send a test notification to one admin
// @Tags     alerts
// @Produce  json
// @Param    id   path      string  true  "Admin UUID"
// @Success  202  {object}  map[string]string
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/admins/{id}/test-notification [post]
func (h *AlertHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "id")
	if err := h.svc.SendTestNotification(r.Context(), adminID); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
