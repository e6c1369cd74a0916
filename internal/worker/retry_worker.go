package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

// RetryWorker keeps the in-memory queue honest against the delivery rows.
// It polls for two kinds of rows:
//
//   - failed rows whose next_retry_at is in the past (scheduled retries)
//   - non-terminal rows (pending/queued/processing) that have not progressed
//     for staleAfter, which happens when a crash or shutdown wiped the
//     in-memory queue out from under them
//
// Both are re-enqueued, so the DB row stays the at-least-once source of
// truth across restarts.
type RetryWorker struct {
	repo       repository.DeliveryRepository
	q          *queue.PriorityQueue
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRetryWorker constructs the poller. now may be nil (defaults to time.Now).
func NewRetryWorker(
	repo repository.DeliveryRepository,
	q *queue.PriorityQueue,
	interval, staleAfter time.Duration,
	logger *zap.Logger,
	now func() time.Time,
) *RetryWorker {
	if now == nil {
		now = time.Now
	}
	return &RetryWorker{
		repo:       repo,
		q:          q,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		now:        now,
	}
}

// Run sweeps once immediately (crash recovery must not wait a full interval),
// then ticks every interval. Stops cleanly when ctx is cancelled.
func (rw *RetryWorker) Run(ctx context.Context) {
	rw.logger.Info("retry worker started",
		zap.Duration("interval", rw.interval),
		zap.Duration("stale_after", rw.staleAfter),
	)

	rw.Sweep(ctx)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			rw.Sweep(ctx)
		}
	}
}

// Sweep re-enqueues due retries and stranded rows. Exported so tests can
// drive a sweep without running the loop.
func (rw *RetryWorker) Sweep(ctx context.Context) {
	due, err := rw.repo.FindDueRetries(ctx)
	if err != nil {
		rw.logger.Error("retry poll error", zap.Error(err))
	} else {
		rw.requeue(ctx, due, "due retry")
	}

	stranded, err := rw.repo.FindStranded(ctx, rw.now().Add(-rw.staleAfter))
	if err != nil {
		rw.logger.Error("stranded poll error", zap.Error(err))
		return
	}
	rw.requeue(ctx, stranded, "stranded delivery")
}

func (rw *RetryWorker) requeue(ctx context.Context, deliveries []*domain.Delivery, kind string) {
	requeued := 0
	for _, d := range deliveries {
		if err := rw.q.Enqueue(queue.Item{
			DeliveryID: d.ID,
			Severity:   d.Severity,
		}); err != nil {
			rw.logger.Warn("could not re-enqueue "+kind,
				zap.String("delivery_id", d.ID), zap.Error(err))
			continue
		}

		// The status write also bumps updated_at, which keeps the row out of
		// the next stranded scan while it waits in the queue.
		if err := rw.repo.UpdateStatus(ctx, d.ID, domain.DeliveryQueued); err != nil {
			rw.logger.Error("failed to update status after re-enqueue",
				zap.String("delivery_id", d.ID), zap.Error(err))
		}
		requeued++
	}

	if requeued > 0 {
		rw.logger.Info("re-enqueued deliveries",
			zap.String("kind", kind), zap.Int("count", requeued))
	}
}
