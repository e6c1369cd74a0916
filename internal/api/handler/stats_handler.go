package handler

import (
	"net/http"

	"github.com/opsnotify/admin-alerting/internal/service"
)

// StatsHandler serves a human-readable JSON pipeline snapshot.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type StatsHandler struct {
	svc *service.NotificationService
}

func NewStatsHandler(svc *service.NotificationService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// GetStats handles GET /api/v1/stats
//
// @Summary  Delivery pipeline snapshot: durable counters and live queue depths
// @Tags     stats
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, depths, err := h.svc.QueueStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	total := 0
	for _, d := range depths {
		total += d
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deliveries":  stats,
		"queue_depth": depths,
		"queue_total": total,
	})
}
