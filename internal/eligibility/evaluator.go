package eligibility

import (
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// Evaluator decides whether one admin should be told about one event.
// It is pure: the only ambient input is the clock, injected for tests.
type Evaluator struct {
	now func() time.Time
}

// New builds an Evaluator. now may be nil (defaults to time.Now).
func New(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now}
}

// ShouldNotify applies the four suppression rules in order:
//
//  1. notifications disabled entirely
//  2. explicit per-event opt-out (absence of the key means opted in)
//  3. severity below the configured floor
//  4. quiet hours, which critical severity always bypasses
func (e *Evaluator) ShouldNotify(settings domain.NotificationSettings, eventType domain.EventType, severity domain.Severity) bool {
	if !settings.Enabled {
		return false
	}

	if !settings.EventEnabled(eventType) {
		return false
	}

	if min := settings.SeverityFilter.MinSeverity; min != "" && !severity.AtLeast(min) {
		return false
	}

	if severity != domain.SeverityCritical &&
		settings.QuietHours.Enabled &&
		settings.QuietHours.Contains(e.now()) {
		return false
	}

	return true
}
