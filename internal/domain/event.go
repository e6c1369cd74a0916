package domain

import "time"

// Severity is the ordinal urgency of an event. The same ordering drives both
// the eligibility floor and queue priority, so the two can never disagree.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityNormal, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Ordinal maps severities onto a comparable scale: low=1 .. critical=4.
// Unknown severities map to 0 and therefore never pass any floor.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityNormal:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is at or above the given floor.
func (s Severity) AtLeast(min Severity) bool {
	return s.Ordinal() >= min.Ordinal()
}

// EventType identifies the kind of occurrence a producer raised.
type EventType string

const (
	// Auth events.
	EventLoginFailure       EventType = "login_failure"
	EventAccountLocked      EventType = "account_locked"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"

	// System events.
	EventServiceDown      EventType = "service_down"
	EventServiceRecovered EventType = "service_recovered"
	EventDatabaseError    EventType = "database_error"
	EventHighErrorRate    EventType = "high_error_rate"
	EventTestNotification EventType = "test_notification"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventLoginFailure, EventAccountLocked, EventSuspiciousActivity,
		EventRateLimitExceeded, EventServiceDown, EventServiceRecovered,
		EventDatabaseError, EventHighErrorRate, EventTestNotification:
		return true
	}
	return false
}

// Event is an ephemeral occurrence raised by a producer. It is consumed once
// by the delivery router and never persisted on its own.
type Event struct {
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Service     string         `json:"service,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (e *Event) Validate() error {
	if !e.Type.IsValid() {
		return ErrInvalidEventType
	}
	if !e.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	return nil
}

// DeliveryPath distinguishes how a message reached the recipient.
type DeliveryPath string

const (
	PathImmediate DeliveryPath = "immediate"
	PathDigest    DeliveryPath = "digest"
	PathEmergency DeliveryPath = "emergency"
)

// JobMetadata travels with every job for traceability.
type JobMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	Priority      Severity  `json:"priority"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
}

// Job is one admin's copy of an event, enriched with the resolved contact.
// Jobs are never mutated after creation; enrichment happens on copies.
type Job struct {
	ID         string         `json:"id"`
	AdminID    string         `json:"admin_id"`
	Event      Event          `json:"event"`
	Data       map[string]any `json:"data,omitempty"`
	AdminEmail string         `json:"admin_email"`
	AdminName  string         `json:"admin_name"`
	Metadata   JobMetadata    `json:"metadata"`
}
