package emergency

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

// Fallback is the delivery pipeline's failure floor: when the primary store
// or queue is degraded during a critical event, it sends directly to a
// cached set of admin contacts, or failing that to a fixed list of addresses
// from process configuration. No queue, no retry — one attempt per recipient.
type Fallback struct {
	admins   repository.AdminRepository
	renderer mailer.Renderer
	tp       mailer.Transport
	limiter  *ratelimiter.PathLimiters
	from     string

	// Last-resort recipients from configuration; invalid entries were
	// discarded at construction time.
	configEmails []string

	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	onSend func()

	mu          sync.RWMutex
	cache       []domain.Contact
	refreshedAt time.Time
}

// New builds a Fallback. configEmails may contain garbage; invalid addresses
// are discarded with a warning. now and onSend may be nil.
func New(
	admins repository.AdminRepository,
	renderer mailer.Renderer,
	tp mailer.Transport,
	limiter *ratelimiter.PathLimiters,
	from string,
	configEmails []string,
	ttl time.Duration,
	logger *zap.Logger,
	now func() time.Time,
	onSend func(),
) *Fallback {
	if now == nil {
		now = time.Now
	}
	if onSend == nil {
		onSend = func() {}
	}

	var valid []string
	for _, addr := range configEmails {
		if mailer.ValidAddress(addr) {
			valid = append(valid, addr)
		} else {
			logger.Warn("discarding invalid emergency admin email", zap.String("address", addr))
		}
	}

	return &Fallback{
		admins:       admins,
		renderer:     renderer,
		tp:           tp,
		limiter:      limiter,
		from:         from,
		configEmails: valid,
		ttl:          ttl,
		logger:       logger,
		now:          now,
		onSend:       onSend,
	}
}

// Run refreshes the contact cache on a fixed cadence until ctx is cancelled.
// A refresh failure is logged and the previous cache value, if still inside
// the TTL, remains usable.
func (f *Fallback) Run(ctx context.Context, interval time.Duration) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("initial emergency contact refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.logger.Info("emergency contact cache refresher started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("emergency contact cache refresher stopping")
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Warn("emergency contact refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh reloads admin contacts from the primary store.
func (f *Fallback) Refresh(ctx context.Context) error {
	recipients, err := f.admins.ListRecipients(ctx)
	if err != nil {
		return err
	}

	now := f.now()
	contacts := make([]domain.Contact, 0, len(recipients))
	for _, rec := range recipients {
		if rec.Email == "" {
			continue
		}
		contacts = append(contacts, domain.Contact{
			AdminID:       rec.Admin.ID,
			UserID:        rec.Admin.UserID,
			Email:         rec.Email,
			Name:          rec.Name,
			LastRefreshed: now,
		})
	}

	f.mu.Lock()
	f.cache = contacts
	f.refreshedAt = now
	f.mu.Unlock()

	f.logger.Debug("emergency contact cache refreshed", zap.Int("contacts", len(contacts)))
	return nil
}

// SendEmergencyNotification delivers event directly to every available
// recipient, bypassing the store and queue. Per-recipient failures are
// logged and do not block the remaining recipients. It never returns an
// error: this path has no further fallback.
func (f *Fallback) SendEmergencyNotification(ctx context.Context, event domain.Event, data map[string]any, cause error) {
	recipients, source := f.recipients()
	if len(recipients) == 0 {
		f.logger.Error("emergency notification has no recipients: cache empty and no configured addresses",
			zap.String("event_type", string(event.Type)),
			zap.NamedError("cause", cause),
		)
		return
	}
	if source == "config" {
		f.logger.Warn("emergency contact cache empty or expired, using configured address list",
			zap.Int("recipients", len(recipients)),
		)
	}

	// Enrich a copy so recipients and postmortems can tell this path apart.
	enriched := make(map[string]any, len(data)+2)
	for k, v := range data {
		enriched[k] = v
	}
	enriched["emergencyNotification"] = true
	if cause != nil {
		enriched["triggerError"] = cause.Error()
	}

	for _, rec := range recipients {
		f.onSend()
		if err := f.sendOne(ctx, event, enriched, rec); err != nil {
			f.logger.Error("emergency send failed for recipient",
				zap.String("to", rec.Email),
				zap.Error(err),
			)
			continue
		}
		f.logger.Info("emergency notification sent",
			zap.String("to", rec.Email),
			zap.String("event_type", string(event.Type)),
		)
	}
}

func (f *Fallback) sendOne(ctx context.Context, event domain.Event, data map[string]any, rec domain.Contact) error {
	rendered, err := f.renderer.RenderEvent(event, data, rec.Name)
	if err != nil {
		return err
	}
	if err := f.limiter.Wait(ctx, domain.PathEmergency); err != nil {
		return err
	}
	_, err = f.tp.Send(ctx, mailer.Message{
		From:    f.from,
		To:      rec.Email,
		Subject: "[EMERGENCY] " + rendered.Subject,
		HTML:    rendered.HTML,
		Tag:     "emergency",
	})
	return err
}

// recipients prefers the still-valid cache, then the configured list.
func (f *Fallback) recipients() ([]domain.Contact, string) {
	f.mu.RLock()
	cache := f.cache
	refreshedAt := f.refreshedAt
	f.mu.RUnlock()

	if len(cache) > 0 && f.now().Sub(refreshedAt) < f.ttl {
		return cache, "cache"
	}

	contacts := make([]domain.Contact, 0, len(f.configEmails))
	for _, addr := range f.configEmails {
		contacts = append(contacts, domain.Contact{Email: addr})
	}
	return contacts, "config"
}
