package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/api"
	"github.com/opsnotify/admin-alerting/internal/config"
	"github.com/opsnotify/admin-alerting/internal/db"
	"github.com/opsnotify/admin-alerting/internal/digest"
	"github.com/opsnotify/admin-alerting/internal/eligibility"
	"github.com/opsnotify/admin-alerting/internal/emergency"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/metrics"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
	"github.com/opsnotify/admin-alerting/internal/service"
	"github.com/opsnotify/admin-alerting/internal/throttle"
	"github.com/opsnotify/admin-alerting/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.New()
	adminRepo := repository.NewPgAdminRepository(pool)
	deliveryRepo := repository.NewPgDeliveryRepository(pool)
	limiter := ratelimiter.New(cfg.SendRate)
	renderer := mailer.NewTemplateRenderer(cfg.FrontendURL)

	// Postmark when tokens are configured, otherwise the file-based dev
	// transport so local runs never hit a real provider.
	var tp mailer.Transport
	if cfg.PostmarkServerToken != "" {
		tp = mailer.NewPostmarkTransport(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
		logger.Info("using postmark transport")
	} else {
		tp = mailer.NewDevTransport(cfg.DevMailDir)
		logger.Warn("no postmark token configured, writing mail to disk", zap.String("dir", cfg.DevMailDir))
	}

	guard := throttle.New(cfg.ThrottleWindow, cfg.ThrottleMax, logger, nil, m.ThrottleHook())
	eval := eligibility.New(nil)
	acc := digest.New(adminRepo, renderer, tp, limiter, cfg.SenderEmail, cfg.DigestTolerance, logger, nil, m.DigestHook())
	fallback := emergency.New(adminRepo, renderer, tp, limiter, cfg.SenderEmail,
		cfg.EmergencyAdminEmails, cfg.CacheTTL, logger, nil, m.EmergencyHook())
	svc := service.NewNotificationService(adminRepo, deliveryRepo, q, eval, acc, fallback, guard, cfg.MaxRetries, logger, nil)

	// ---- background goroutines ----
	// Context for all background work; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onSent, onFailed := m.WorkerHooks()
	wpool := worker.NewPool(cfg, q, deliveryRepo, renderer, tp, limiter, logger, worker.MetricHooks{
		OnSent:   onSent,
		OnFailed: onFailed,
	})
	wpool.Start(workerCtx)

	retryW := worker.NewRetryWorker(deliveryRepo, q, cfg.RetryInterval, cfg.StrandedAfter, logger, nil)
	go retryW.Run(workerCtx)

	janitorW := worker.NewJanitorWorker(deliveryRepo, cfg.JanitorInterval,
		cfg.CompletedRetention, cfg.CompletedKeep, cfg.FailedRetention, logger)
	go janitorW.Run(workerCtx)

	go fallback.Run(workerCtx, cfg.CacheRefreshInterval)

	// Push live queue depths to the gauges the scrape endpoint exposes.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				critical, high, normal, low := q.Depths()
				m.QueueDepthCritical.Set(float64(critical))
				m.QueueDepthHigh.Set(float64(high))
				m.QueueDepthNormal.Set(float64(normal))
				m.QueueDepthLow.Set(float64(low))
			}
		}
	}()

	scheduler, err := digest.NewScheduler(acc, logger)
	if err != nil {
		logger.Fatal("failed to build digest scheduler", zap.Error(err))
	}
	scheduler.Start()

	// ---- HTTP server ----
	router := api.NewRouter(svc, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all background goroutines to stop.
	cancelWorkers()

	// 3. Wait for in-flight workers to finish their current message.
	wpool.Wait()

	// 4. Let a digest flush in progress complete.
	<-scheduler.Stop().Done()

	logger.Info("server stopped cleanly")
}
