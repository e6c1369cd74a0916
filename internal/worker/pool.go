package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/config"
	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnSent   func(path domain.DeliveryPath, latency time.Duration)
	OnFailed func(path domain.DeliveryPath)
}

// Pool manages the lifecycle of the bounded delivery worker set. All workers
// share the same priority queue — its severity tiers handle ordering.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates cfg.Workers identical workers.
func NewPool(
	cfg *config.Config,
	q *queue.PriorityQueue,
	repo repository.DeliveryRepository,
	renderer mailer.Renderer,
	tp mailer.Transport,
	limiter *ratelimiter.PathLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, cfg.Workers)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, repo, renderer, tp, limiter,
			cfg.SenderEmail,
			cfg.RetryBackoff,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnSent,
			hooks.OnFailed,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight messages finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
