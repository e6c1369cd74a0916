package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/digest"
	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/eligibility"
	"github.com/opsnotify/admin-alerting/internal/emergency"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/repository"
	"github.com/opsnotify/admin-alerting/internal/throttle"
)

// NotificationService is the intake and routing core: it fans an event out to
// eligible admins, persists immediate-path jobs, hands digest-path jobs to
// the accumulator, and escalates to the emergency fallback when the primary
// path cannot serve a critical event.
type NotificationService struct {
	admins     repository.AdminRepository
	deliveries repository.DeliveryRepository
	q          *queue.PriorityQueue
	eval       *eligibility.Evaluator
	digests    *digest.Accumulator
	fallback   *emergency.Fallback
	guard      *throttle.Guard
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotificationService wires the routing core. now may be nil.
func NewNotificationService(
	admins repository.AdminRepository,
	deliveries repository.DeliveryRepository,
	q *queue.PriorityQueue,
	eval *eligibility.Evaluator,
	digests *digest.Accumulator,
	fallback *emergency.Fallback,
	guard *throttle.Guard,
	maxRetries int,
	logger *zap.Logger,
	now func() time.Time,
) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		admins:     admins,
		deliveries: deliveries,
		q:          q,
		eval:       eval,
		digests:    digests,
		fallback:   fallback,
		guard:      guard,
		maxRetries: maxRetries,
		logger:     logger,
		now:        now,
	}
}

// TriggerNotification is the single entry point for raising an event. It
// never panics outward: any panic in the fan-out is recovered, and critical
// events still get one emergency attempt before the call returns.
func (s *NotificationService) TriggerNotification(ctx context.Context, event domain.Event, data map[string]any, source, correlationID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during notification fan-out",
				zap.Any("panic", r),
				zap.String("event_type", string(event.Type)),
			)
			if event.Severity == domain.SeverityCritical {
				s.fallback.SendEmergencyNotification(ctx, event, data, fmt.Errorf("panic: %v", r))
			}
			err = fmt.Errorf("notification fan-out panicked: %v", r)
		}
	}()

	if verr := event.Validate(); verr != nil {
		return verr
	}

	recipients, lerr := s.admins.ListRecipients(ctx)
	if lerr != nil {
		s.logger.Error("listing recipients failed",
			zap.Error(lerr),
			zap.String("event_type", string(event.Type)),
		)
		if event.Severity == domain.SeverityCritical {
			s.fallback.SendEmergencyNotification(ctx, event, data, lerr)
		}
		// Non-critical alerts are best-effort: with the admin store down
		// there is nobody to fan out to, so the event is dropped after the
		// log line above rather than bubbling a 500 back to the caller.
		return nil
	}

	var eligible []*domain.Recipient
	for _, rec := range recipients {
		if s.eval.ShouldNotify(rec.Admin.Settings, event.Type, event.Severity) {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		s.logger.Debug("no eligible recipients for event",
			zap.String("event_type", string(event.Type)),
			zap.String("severity", string(event.Severity)),
		)
		return nil
	}

	// Rows are inserted one admin at a time so a single constraint failure
	// cannot veto the rest of the fan-out; the surviving rows are then
	// submitted to the in-memory queue as one batch.
	var persisted []*domain.Delivery
	immediate := 0
	for _, rec := range eligible {
		job := s.buildJob(event, data, rec, source, correlationID)

		switch rec.Admin.Settings.EmailFrequency {
		case domain.FrequencyHourly, domain.FrequencyDaily:
			s.digests.Add(rec.Admin.ID, job)
		default:
			immediate++
			d := s.newDelivery(rec.Admin.ID, job)
			if cerr := s.deliveries.Create(ctx, d); cerr != nil {
				s.logger.Error("persisting delivery failed",
					zap.String("admin_id", rec.Admin.ID),
					zap.Error(cerr),
				)
				continue
			}
			persisted = append(persisted, d)
		}
	}

	items := make([]queue.Item, len(persisted))
	for i, d := range persisted {
		items[i] = queue.Item{DeliveryID: d.ID, Severity: d.Severity}
	}
	accepted, qerr := s.q.EnqueueBulk(items)
	if qerr != nil {
		s.logger.Error("queue saturated during fan-out",
			zap.Int("accepted", accepted),
			zap.Int("rejected", len(items)-accepted),
			zap.Error(qerr),
		)
	}
	for i, d := range persisted {
		if i < accepted {
			if uerr := s.deliveries.UpdateStatus(ctx, d.ID, domain.DeliveryQueued); uerr != nil {
				s.logger.Warn("delivery queued but status update failed", zap.String("delivery_id", d.ID), zap.Error(uerr))
			}
			continue
		}
		if merr := s.deliveries.MarkFailed(ctx, d.ID, qerr.Error()); merr != nil {
			s.logger.Error("marking rejected delivery failed", zap.String("delivery_id", d.ID), zap.Error(merr))
		}
	}
	enqueued := accepted

	if immediate > 0 && enqueued == 0 && event.Severity == domain.SeverityCritical {
		s.fallback.SendEmergencyNotification(ctx, event, data, fmt.Errorf("all %d immediate enqueues failed", immediate))
	}

	s.logger.Info("event fanned out",
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Int("eligible", len(eligible)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}

// buildJob makes the per-admin immutable copy of the event. data is copied so
// later enrichment of one job never leaks into another.
func (s *NotificationService) buildJob(event domain.Event, data map[string]any, rec *domain.Recipient, source, correlationID string) *domain.Job {
	dataCopy := make(map[string]any, len(data))
	for k, v := range data {
		dataCopy[k] = v
	}
	return &domain.Job{
		ID:         uuid.New().String(),
		AdminID:    rec.Admin.ID,
		Event:      event,
		Data:       dataCopy,
		AdminEmail: rec.Email,
		AdminName:  rec.Name,
		Metadata: domain.JobMetadata{
			Timestamp:     s.now(),
			Priority:      event.Severity,
			Source:        source,
			CorrelationID: correlationID,
		},
	}
}

func (s *NotificationService) newDelivery(adminID string, job *domain.Job) *domain.Delivery {
	return &domain.Delivery{
		ID:         job.ID,
		AdminID:    adminID,
		Path:       domain.PathImmediate,
		Severity:   job.Event.Severity,
		Job:        *job,
		Status:     domain.DeliveryPending,
		MaxRetries: s.maxRetries,
	}
}

func (s *NotificationService) enqueueImmediate(ctx context.Context, rec *domain.Recipient, job *domain.Job) error {
	d := s.newDelivery(rec.Admin.ID, job)
	if err := s.deliveries.Create(ctx, d); err != nil {
		return fmt.Errorf("persist delivery: %w", err)
	}
	if err := s.q.Enqueue(queue.Item{DeliveryID: d.ID, Severity: d.Severity}); err != nil {
		// The row stays pending; the retry worker will not pick it up, so
		// record the saturation for the stats endpoint.
		if merr := s.deliveries.MarkFailed(ctx, d.ID, err.Error()); merr != nil {
			s.logger.Error("marking saturated delivery failed", zap.String("delivery_id", d.ID), zap.Error(merr))
		}
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	if err := s.deliveries.UpdateStatus(ctx, d.ID, domain.DeliveryQueued); err != nil {
		s.logger.Warn("delivery queued but status update failed", zap.String("delivery_id", d.ID), zap.Error(err))
	}
	return nil
}

// SendTestNotification raises a low-stakes event addressed at a single admin,
// used to verify an admin's settings end to end.
func (s *NotificationService) SendTestNotification(ctx context.Context, adminID string) error {
	rec, err := s.admins.GetRecipient(ctx, adminID)
	if err != nil {
		return err
	}
	event := domain.Event{
		Type:        domain.EventTestNotification,
		Severity:    domain.SeverityNormal,
		Description: "This is a test notification.",
		Service:     "admin-alerting",
	}
	// Test notifications bypass eligibility so a misconfigured admin can
	// still verify the transport; routing follows their frequency.
	job := s.buildJob(event, nil, rec, "test", uuid.New().String())
	if rec.Admin.Settings.EmailFrequency != domain.FrequencyImmediate {
		s.digests.Add(rec.Admin.ID, job)
		return nil
	}
	return s.enqueueImmediate(ctx, rec, job)
}

// GetSettings returns the admin's effective settings. Unparseable stored
// documents surface as defaults, never as an error.
func (s *NotificationService) GetSettings(ctx context.Context, adminID string) (domain.NotificationSettings, error) {
	admin, err := s.admins.GetAdmin(ctx, adminID)
	if err != nil {
		return domain.NotificationSettings{}, err
	}
	return admin.Settings, nil
}

// UpdateSettings applies a partial settings document. Unlike reads, writes
// are strict: any invalid field rejects the whole update.
func (s *NotificationService) UpdateSettings(ctx context.Context, adminID string, raw []byte) (domain.NotificationSettings, error) {
	admin, err := s.admins.GetAdmin(ctx, adminID)
	if err != nil {
		return domain.NotificationSettings{}, err
	}
	settings := admin.Settings
	if err := settings.ApplyPartial(raw); err != nil {
		return domain.NotificationSettings{}, err
	}
	if err := s.admins.UpdateSettings(ctx, adminID, settings); err != nil {
		return domain.NotificationSettings{}, err
	}
	return settings, nil
}

// CreateOrUpdateAdmin registers a user as an alert recipient with default
// settings, or returns the existing admin record.
func (s *NotificationService) CreateOrUpdateAdmin(ctx context.Context, userID string) (*domain.Admin, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if existing, err := s.admins.GetAdminByUserID(ctx, userID); err == nil {
		return existing, nil
	}
	admin := &domain.Admin{
		ID:            uuid.New().String(),
		UserID:        userID,
		Settings:      domain.DefaultSettings(),
		SettingsValid: true,
	}
	if err := s.admins.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// SendManualDigest flushes an admin's pending digest on demand. Returns
// false when there was nothing to send.
func (s *NotificationService) SendManualDigest(ctx context.Context, adminID string) (bool, error) {
	return s.digests.SendManualDigest(ctx, adminID)
}

// QueueStats merges the durable counters with live in-memory queue depths.
func (s *NotificationService) QueueStats(ctx context.Context) (*domain.QueueStats, map[string]int, error) {
	stats, err := s.deliveries.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	critical, high, normal, low := s.q.Depths()
	depths := map[string]int{
		"critical": critical,
		"high":     high,
		"normal":   normal,
		"low":      low,
	}
	return stats, depths, nil
}

// ShouldThrottle asks the suppression guard whether this occurrence should
// be dropped. Callers check this before TriggerNotification.
func (s *NotificationService) ShouldThrottle(category string, eventType domain.EventType) bool {
	return s.guard.ShouldThrottle(category, string(eventType))
}

// ResetThrottle clears a suppression window, typically on recovery events.
func (s *NotificationService) ResetThrottle(category string, eventType domain.EventType) {
	s.guard.Reset(category, string(eventType))
}
