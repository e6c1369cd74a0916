package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/service"
)

// SettingsHandler covers admin registration and notification preferences.
type SettingsHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewSettingsHandler(svc *service.NotificationService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, logger: logger}
}

type createAdminRequest struct {
	UserID string `json:"user_id"`
}

// CreateAdmin handles POST /api/v1/admins
//
// @Summary     Register a user as an alert recipient
// @Tags        admins
// @Accept      json
// @Produce     json
// @Param       body  body      createAdminRequest  true  "User reference"
// @Success     201   {object}  domain.Admin
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/admins [post]
func (h *SettingsHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	admin, err := h.svc.CreateOrUpdateAdmin(r.Context(), req.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, admin)
}

// GetSettings handles GET /api/v1/admins/{id}/settings
//
// @Summary  Get an admin's effective notification settings
// @Tags     admins
// @Produce  json
// @Param    id   path      string  true  "Admin UUID"
// @Success  200  {object}  domain.NotificationSettings
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/admins/{id}/settings [get]
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "id")
	settings, err := h.svc.GetSettings(r.Context(), adminID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/v1/admins/{id}/settings
//
// The body is a partial settings document; omitted fields keep their
// current values. Any invalid field rejects the whole update.
//
// @Summary  Update an admin's notification settings
// @Tags     admins
// @Accept   json
// @Produce  json
// @Param    id    path      string                       true  "Admin UUID"
// @Param    body  body      domain.NotificationSettings  true  "Partial settings"
// @Success  200   {object}  domain.NotificationSettings
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/admins/{id}/settings [put]
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "id")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	settings, err := h.svc.UpdateSettings(r.Context(), adminID, raw)
	if err != nil {
		h.logger.Warn("settings update rejected",
			zap.String("admin_id", adminID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// SendDigest handles POST /api/v1/admins/{id}/digest
//
// @Summary  Flush an admin's pending digest immediately
// @Tags     admins
// @Produce  json
// @Param    id   path      string  true  "Admin UUID"
// @Success  200  {object}  map[string]any
// @Router   /api/v1/admins/{id}/digest [post]
func (h *SettingsHandler) SendDigest(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "id")
	sent, err := h.svc.SendManualDigest(r.Context(), adminID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": sent})
}
