package emergency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

func criticalEvent() domain.Event {
	return domain.Event{
		Type:        domain.EventServiceDown,
		Severity:    domain.SeverityCritical,
		Description: "api gateway unreachable",
		Service:     "gateway",
	}
}

func newFallback(repo *repository.MockAdminRepository, tp mailer.Transport, configEmails []string) *Fallback {
	return New(
		repo,
		&mailer.StaticRenderer{},
		tp,
		ratelimiter.New(100),
		"alerts@example.com",
		configEmails,
		time.Hour,
		zap.NewNop(),
		nil,
		nil,
	)
}

func TestFallback_UsesConfigListWhenCacheEmpty(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	tp := mailer.NewRecorderTransport()
	fb := newFallback(repo, tp, []string{"oncall@example.com", "not-an-address", "backup@example.com"})

	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, errors.New("db down"))

	sent := tp.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want 2", len(sent))
	}
	if sent[0].To != "oncall@example.com" || sent[1].To != "backup@example.com" {
		t.Fatalf("unexpected recipients: %q, %q", sent[0].To, sent[1].To)
	}
	if !strings.HasPrefix(sent[0].Subject, "[EMERGENCY]") {
		t.Fatalf("subject = %q, want [EMERGENCY] prefix", sent[0].Subject)
	}
}

func TestFallback_PrefersFreshCache(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	repo.AddRecipient(domain.Admin{ID: "a1", UserID: "u1", Settings: domain.DefaultSettings()}, "alice@example.com", "Alice")
	repo.AddRecipient(domain.Admin{ID: "a2", UserID: "u2", Settings: domain.DefaultSettings()}, "bob@example.com", "Bob")
	tp := mailer.NewRecorderTransport()
	fb := newFallback(repo, tp, []string{"oncall@example.com"})

	if err := fb.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, nil)

	sent := tp.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want 2 cached admins", len(sent))
	}
	for _, msg := range sent {
		if msg.To == "oncall@example.com" {
			t.Fatalf("config address used despite fresh cache")
		}
	}
}

func TestFallback_ExpiredCacheFallsBackToConfig(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	repo.AddRecipient(domain.Admin{ID: "a1", UserID: "u1", Settings: domain.DefaultSettings()}, "alice@example.com", "Alice")
	tp := mailer.NewRecorderTransport()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fb := New(repo, &mailer.StaticRenderer{}, tp, ratelimiter.New(100), "alerts@example.com",
		[]string{"oncall@example.com"}, 30*time.Minute, zap.NewNop(),
		func() time.Time { return current }, nil)

	if err := fb.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	current = current.Add(31 * time.Minute)

	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, nil)

	sent := tp.Sent()
	if len(sent) != 1 || sent[0].To != "oncall@example.com" {
		t.Fatalf("expected single send to config address, got %+v", sent)
	}
}

func TestFallback_PerRecipientFailureIsolation(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	tp := mailer.NewRecorderTransport()
	tp.ErrFor["oncall@example.com"] = errors.New("mailbox full")
	fb := newFallback(repo, tp, []string{"oncall@example.com", "backup@example.com"})

	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, nil)

	sent := tp.Sent()
	if len(sent) != 1 || sent[0].To != "backup@example.com" {
		t.Fatalf("expected backup recipient to still receive, got %+v", sent)
	}
}

func TestFallback_NoRecipientsIsANoOp(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	tp := mailer.NewRecorderTransport()
	fb := newFallback(repo, tp, nil)

	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, errors.New("everything is down"))

	if len(tp.Sent()) != 0 {
		t.Fatalf("expected zero sends with no recipients")
	}
}

func TestFallback_CountsAttempts(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	tp := mailer.NewRecorderTransport()
	var attempts int
	fb := New(repo, &mailer.StaticRenderer{}, tp, ratelimiter.New(100), "alerts@example.com",
		[]string{"oncall@example.com", "backup@example.com"}, time.Hour, zap.NewNop(), nil,
		func() { attempts++ })

	fb.SendEmergencyNotification(context.Background(), criticalEvent(), nil, nil)

	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}
