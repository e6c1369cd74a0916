package digest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

// FlushHook is the metric callback for digest flushes: schedule is
// "hourly", "daily", or "manual"; outcome is "success" or "failure".
type FlushHook func(schedule, outcome string)

// Accumulator buffers per-admin jobs between scheduled flushes. A flush
// renders one combined message from everything pending and clears the buffer
// only after a confirmed send; failure leaves the buffer intact so the next
// run retries with the same (plus any newly added) items.
//
// The buffer map is process-local and mutex-guarded; an in-flight set keeps
// concurrent hourly/daily/manual flushes from double-sending for the same
// admin. Multi-instance deployments each hold an independent accumulator.
type Accumulator struct {
	mu       sync.Mutex
	pending  map[string][]*domain.Job
	inflight map[string]struct{}

	admins    repository.AdminRepository
	renderer  mailer.Renderer
	tp        mailer.Transport
	limiter   *ratelimiter.PathLimiters
	from      string
	tolerance time.Duration
	logger    *zap.Logger
	now       func() time.Time
	onFlush   FlushHook
}

// New builds an Accumulator. now and onFlush may be nil (defaults: time.Now,
// no-op hook).
func New(
	admins repository.AdminRepository,
	renderer mailer.Renderer,
	tp mailer.Transport,
	limiter *ratelimiter.PathLimiters,
	from string,
	tolerance time.Duration,
	logger *zap.Logger,
	now func() time.Time,
	onFlush FlushHook,
) *Accumulator {
	if now == nil {
		now = time.Now
	}
	if onFlush == nil {
		onFlush = func(string, string) {}
	}
	return &Accumulator{
		pending:   make(map[string][]*domain.Job),
		inflight:  make(map[string]struct{}),
		admins:    admins,
		renderer:  renderer,
		tp:        tp,
		limiter:   limiter,
		from:      from,
		tolerance: tolerance,
		logger:    logger,
		now:       now,
		onFlush:   onFlush,
	}
}

// Add appends a job to the admin's pending buffer. It cannot fail; the
// buffer is unbounded within a flush interval.
func (a *Accumulator) Add(adminID string, job *domain.Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[adminID] = append(a.pending[adminID], job)
}

// PendingCount reports how many jobs are buffered for the admin.
func (a *Accumulator) PendingCount(adminID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending[adminID])
}

// FlushHourly sends one combined message to every enabled admin on the
// hourly frequency with a non-empty buffer.
func (a *Accumulator) FlushHourly(ctx context.Context) {
	recipients, err := a.admins.ListRecipients(ctx)
	if err != nil {
		a.logger.Error("hourly digest: failed to load recipients", zap.Error(err))
		a.onFlush("hourly", "failure")
		return
	}

	for _, rec := range recipients {
		settings := rec.Admin.Settings
		if settings.EmailFrequency != domain.FrequencyHourly || !settings.Enabled {
			continue
		}
		a.flushOne(ctx, rec, "hourly")
	}
}

// FlushDaily sends to enabled daily-frequency admins whose local clock is
// currently inside the tolerance window after their configured digest time.
// Admins whose stored settings failed to parse are skipped rather than
// defaulted: sending at the wrong local time is worse than skipping once.
func (a *Accumulator) FlushDaily(ctx context.Context) {
	recipients, err := a.admins.ListRecipients(ctx)
	if err != nil {
		a.logger.Error("daily digest: failed to load recipients", zap.Error(err))
		a.onFlush("daily", "failure")
		return
	}

	now := a.now()
	for _, rec := range recipients {
		settings := rec.Admin.Settings
		if settings.EmailFrequency != domain.FrequencyDaily || !settings.Enabled {
			continue
		}
		if !rec.Admin.SettingsValid {
			a.logger.Warn("daily digest: skipping admin with unparseable settings",
				zap.String("admin_id", rec.Admin.ID))
			continue
		}
		if !a.digestTimeMatches(settings, now) {
			continue
		}
		a.flushOne(ctx, rec, "daily")
	}
}

// SendManualDigest flushes one admin on demand. Returns false without
// sending when nothing is pending (or a flush is already in flight).
func (a *Accumulator) SendManualDigest(ctx context.Context, adminID string) (bool, error) {
	rec, err := a.admins.GetRecipient(ctx, adminID)
	if err != nil {
		return false, err
	}

	jobs, ok := a.begin(adminID)
	if !ok {
		return false, nil
	}

	if err := a.send(ctx, rec, jobs); err != nil {
		a.abort(adminID)
		a.onFlush("manual", "failure")
		return false, err
	}

	a.commit(ctx, rec.Admin.ID, len(jobs))
	a.onFlush("manual", "success")
	return true, nil
}

// digestTimeMatches reports whether now, in the admin's configured timezone,
// falls inside [digestTime, digestTime+tolerance). One-sided so a scan every
// tolerance interval fires exactly once per day.
func (a *Accumulator) digestTimeMatches(settings domain.NotificationSettings, now time.Time) bool {
	target, err := domain.ParseClock(settings.DigestTime)
	if err != nil {
		return false
	}
	local := now.In(settings.QuietHours.Location())
	minute := local.Hour()*60 + local.Minute()
	diff := minute - target
	return diff >= 0 && diff < int(a.tolerance.Minutes())
}

func (a *Accumulator) flushOne(ctx context.Context, rec *domain.Recipient, schedule string) {
	jobs, ok := a.begin(rec.Admin.ID)
	if !ok {
		return
	}

	log := a.logger.With(
		zap.String("admin_id", rec.Admin.ID),
		zap.String("schedule", schedule),
		zap.Int("jobs", len(jobs)),
	)

	if err := a.send(ctx, rec, jobs); err != nil {
		a.abort(rec.Admin.ID)
		a.onFlush(schedule, "failure")
		log.Warn("digest send failed, buffer kept for retry", zap.Error(err))
		return
	}

	a.commit(ctx, rec.Admin.ID, len(jobs))
	a.onFlush(schedule, "success")
	log.Info("digest sent")
}

func (a *Accumulator) send(ctx context.Context, rec *domain.Recipient, jobs []*domain.Job) error {
	rendered, err := a.renderer.RenderDigest(jobs, rec.Name)
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx, domain.PathDigest); err != nil {
		return err
	}
	res, err := a.tp.Send(ctx, mailer.Message{
		From:    a.from,
		To:      rec.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Tag:     "digest",
	})
	if err != nil {
		return err
	}
	if res == nil || res.MessageID == "" {
		return domain.ErrNoMessageID
	}
	return nil
}

// begin snapshots the admin's buffer and marks the admin in flight. Returns
// ok=false when the buffer is empty or another flush holds the admin.
func (a *Accumulator) begin(adminID string) ([]*domain.Job, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[adminID]; busy {
		return nil, false
	}
	jobs := a.pending[adminID]
	if len(jobs) == 0 {
		return nil, false
	}
	snapshot := make([]*domain.Job, len(jobs))
	copy(snapshot, jobs)
	a.inflight[adminID] = struct{}{}
	return snapshot, true
}

// commit drops the sent jobs from the front of the buffer (jobs added during
// the send stay queued for the next flush) and records the digest time.
func (a *Accumulator) commit(ctx context.Context, adminID string, sent int) {
	a.mu.Lock()
	remaining := a.pending[adminID]
	if sent >= len(remaining) {
		delete(a.pending, adminID)
	} else {
		a.pending[adminID] = remaining[sent:]
	}
	delete(a.inflight, adminID)
	a.mu.Unlock()

	if err := a.admins.UpdateLastDigestSent(ctx, adminID, a.now().UTC()); err != nil {
		a.logger.Error("failed to record last digest time",
			zap.String("admin_id", adminID), zap.Error(err))
	}
}

func (a *Accumulator) abort(adminID string) {
	a.mu.Lock()
	delete(a.inflight, adminID)
	a.mu.Unlock()
}
