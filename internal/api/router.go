package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/api/handler"
	apimw "github.com/opsnotify/admin-alerting/internal/api/middleware"
	"github.com/opsnotify/admin-alerting/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ah := handler.NewAlertHandler(svc, logger)
	sh := handler.NewSettingsHandler(svc, logger)
	st := handler.NewStatsHandler(svc)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Event intake
		r.Post("/alerts", ah.Trigger)

		// Admin recipients and their preferences
		r.Post("/admins", sh.CreateAdmin)
		r.Get("/admins/{id}/settings", sh.GetSettings)
		r.Put("/admins/{id}/settings", sh.UpdateSettings)
		r.Post("/admins/{id}/digest", sh.SendDigest)
		r.Post("/admins/{id}/test-notification", ah.SendTest)

		// JSON pipeline snapshot
		r.Get("/stats", st.GetStats)
	})

	return r
}
