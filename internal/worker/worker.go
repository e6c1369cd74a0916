package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

// Worker is a single goroutine that continuously pulls items from the
// priority queue, renders and sends the job's email, and classifies failures
// as terminal (mark failed, no retry) or retryable (schedule backoff).
type Worker struct {
	id       int
	q        *queue.PriorityQueue
	repo     repository.DeliveryRepository
	renderer mailer.Renderer
	tp       mailer.Transport
	limiter  *ratelimiter.PathLimiters
	from     string
	backoff  []time.Duration
	logger   *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onSent   func(path domain.DeliveryPath, latency time.Duration)
	onFailed func(path domain.DeliveryPath)
}

// NewWorker constructs a worker. onSent and onFailed are optional (nil = no-op).
func NewWorker(
	id int,
	q *queue.PriorityQueue,
	repo repository.DeliveryRepository,
	renderer mailer.Renderer,
	tp mailer.Transport,
	limiter *ratelimiter.PathLimiters,
	from string,
	backoff []time.Duration,
	logger *zap.Logger,
	onSent func(domain.DeliveryPath, time.Duration),
	onFailed func(domain.DeliveryPath),
) *Worker {
	if onSent == nil {
		onSent = func(domain.DeliveryPath, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(domain.DeliveryPath) {}
	}
	return &Worker{
		id: id, q: q, repo: repo, renderer: renderer, tp: tp,
		limiter: limiter, from: from, backoff: backoff, logger: logger,
		onSent: onSent, onFailed: onFailed,
	}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("delivery worker started", zap.Int("id", w.id))
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.logger.Info("delivery worker stopping", zap.Int("id", w.id))
			return
		}
		w.Process(ctx, item)
	}
}

// Process handles one queue item end to end. Exported so tests can drive a
// worker without running its loop.
func (w *Worker) Process(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := w.logger.With(
		zap.String("delivery_id", item.DeliveryID),
		zap.String("severity", string(item.Severity)),
	)

	d, err := w.repo.GetByID(ctx, item.DeliveryID)
	if err != nil {
		log.Error("failed to fetch delivery", zap.Error(err))
		return
	}
	log = log.With(zap.String("admin_id", d.AdminID))

	// Already delivered by a previous attempt that crashed before the queue
	// item was consumed — at-least-once makes this a valid state.
	if d.Status == domain.DeliverySent {
		log.Debug("delivery already sent, skipping")
		return
	}

	if err := w.repo.UpdateStatus(ctx, d.ID, domain.DeliveryProcessing); err != nil {
		log.Error("failed to mark as processing", zap.Error(err))
		return
	}

	// A job without a resolved address can never succeed.
	if d.Job.AdminEmail == "" {
		log.Warn("delivery has no admin email, failing terminally")
		w.failTerminally(ctx, d, domain.ErrNoRecipient)
		return
	}

	rendered, err := w.renderer.RenderEvent(d.Job.Event, d.Job.Data, d.Job.AdminName)
	if err != nil {
		log.Warn("render failed", zap.Error(err))
		w.handleFailure(ctx, d, err)
		return
	}

	// Block here until the path's rate limiter grants a token.
	if err := w.limiter.Wait(ctx, d.Path); err != nil {
		// ctx cancelled while waiting — worker is shutting down. Put the row
		// back to queued so the stranded sweep re-enqueues it after restart
		// instead of leaving it parked in processing.
		if uerr := w.repo.UpdateStatus(context.WithoutCancel(ctx), d.ID, domain.DeliveryQueued); uerr != nil {
			log.Error("failed to restore queued status on shutdown", zap.Error(uerr))
		}
		return
	}

	res, err := w.tp.Send(ctx, mailer.Message{
		From:    w.from,
		To:      d.Job.AdminEmail,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Tag:     string(d.Job.Event.Type),
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("transport send failed",
			zap.Error(err),
			zap.Int("retry_count", d.RetryCount),
			zap.Bool("terminal", domain.IsTerminal(err)),
		)
		if domain.IsTerminal(err) {
			w.failTerminally(ctx, d, err)
		} else {
			w.handleFailure(ctx, d, err)
		}
		return
	}

	// A transport that acks without a message id is silently broken;
	// treat it as a failed attempt rather than trusting the delivery.
	if res == nil || res.MessageID == "" {
		log.Warn("transport returned success without a message id")
		w.handleFailure(ctx, d, domain.ErrNoMessageID)
		return
	}

	if err := w.repo.MarkSent(ctx, d.ID, res.MessageID, time.Now().UTC()); err != nil {
		log.Error("failed to mark as sent", zap.Error(err))
		return
	}

	w.onSent(d.Path, elapsed)
	log.Info("alert delivered",
		zap.String("provider_msg_id", res.MessageID),
		zap.Duration("latency", elapsed),
	)
}

func (w *Worker) failTerminally(ctx context.Context, d *domain.Delivery, cause error) {
	if err := w.repo.MarkFailed(ctx, d.ID, cause.Error()); err != nil {
		w.logger.Error("failed to mark delivery as failed",
			zap.String("delivery_id", d.ID), zap.Error(err))
	}
	w.onFailed(d.Path)
}

// handleFailure either schedules a retry (if retries remain) or marks the
// delivery as permanently failed.
//
// Retry schedule uses exponential backoff:
//
//	attempt 0 → backoff[0]  (default 5 s)
//	attempt 1 → backoff[1]  (default 30 s)
//	attempt 2 → backoff[2]  (default 120 s)
//	attempt N ≥ len(backoff) → last backoff entry (clamped)
func (w *Worker) handleFailure(ctx context.Context, d *domain.Delivery, sendErr error) {
	if d.RetryCount >= d.MaxRetries {
		w.failTerminally(ctx, d, sendErr)
		return
	}

	idx := d.RetryCount
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	nextRetry := time.Now().UTC().Add(w.backoff[idx])

	if err := w.repo.ScheduleRetry(ctx, d.ID, d.RetryCount+1, nextRetry, sendErr.Error()); err != nil {
		w.logger.Error("failed to schedule retry",
			zap.String("delivery_id", d.ID), zap.Error(err))
	}
}
