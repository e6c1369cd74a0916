package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/repository"
)

// JanitorWorker enforces delivery-log retention: sent rows are kept for a
// short window (capped at a newest-N limit), failed rows for a longer one
// so postmortems can inspect what went wrong.
type JanitorWorker struct {
	repo               repository.DeliveryRepository
	interval           time.Duration
	completedRetention time.Duration
	completedKeep      int
	failedRetention    time.Duration
	logger             *zap.Logger
}

func NewJanitorWorker(
	repo repository.DeliveryRepository,
	interval, completedRetention time.Duration,
	completedKeep int,
	failedRetention time.Duration,
	logger *zap.Logger,
) *JanitorWorker {
	return &JanitorWorker{
		repo:               repo,
		interval:           interval,
		completedRetention: completedRetention,
		completedKeep:      completedKeep,
		failedRetention:    failedRetention,
		logger:             logger,
	}
}

// Run ticks every interval and purges rows past retention.
// Stops cleanly when ctx is cancelled.
func (jw *JanitorWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(jw.interval)
	defer ticker.Stop()

	jw.logger.Info("janitor worker started", zap.Duration("interval", jw.interval))

	for {
		select {
		case <-ctx.Done():
			jw.logger.Info("janitor worker stopping")
			return
		case <-ticker.C:
			jw.sweep(ctx)
		}
	}
}

func (jw *JanitorWorker) sweep(ctx context.Context) {
	now := time.Now().UTC()

	completed, err := jw.repo.PurgeCompleted(ctx, now.Add(-jw.completedRetention), jw.completedKeep)
	if err != nil {
		jw.logger.Error("purge completed deliveries failed", zap.Error(err))
	}

	failed, err := jw.repo.PurgeFailed(ctx, now.Add(-jw.failedRetention))
	if err != nil {
		jw.logger.Error("purge failed deliveries failed", zap.Error(err))
	}

	if completed > 0 || failed > 0 {
		jw.logger.Info("delivery log swept",
			zap.Int64("completed_purged", completed),
			zap.Int64("failed_purged", failed),
		)
	}
}
