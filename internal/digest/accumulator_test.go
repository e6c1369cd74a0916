package digest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/digest"
	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
)

func job(id string) *domain.Job {
	return &domain.Job{
		ID:      id,
		AdminID: "admin-1",
		Event: domain.Event{
			Type:        domain.EventHighErrorRate,
			Severity:    domain.SeverityNormal,
			Description: "error rate above threshold",
		},
		AdminEmail: "alex@example.com",
		AdminName:  "Alex",
	}
}

func seedAdmin(repo *repository.MockAdminRepository, freq domain.EmailFrequency) {
	settings := domain.DefaultSettings()
	settings.EmailFrequency = freq
	repo.AddRecipient(domain.Admin{
		ID:            "admin-1",
		UserID:        "user-1",
		Settings:      settings,
		SettingsValid: true,
	}, "alex@example.com", "Alex")
}

func newAccumulator(repo *repository.MockAdminRepository, tp mailer.Transport, now func() time.Time) *digest.Accumulator {
	return digest.New(
		repo, &mailer.StaticRenderer{}, tp, ratelimiter.New(1000),
		"alerts@example.com", 5*time.Minute, zap.NewNop(), now, nil,
	)
}

func TestAccumulator_SuccessfulHourlyFlushClearsBuffer(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	seedAdmin(repo, domain.FrequencyHourly)
	tp := mailer.NewRecorderTransport()
	acc := newAccumulator(repo, tp, nil)

	acc.Add("admin-1", job("1"))
	acc.Add("admin-1", job("2"))
	acc.Add("admin-1", job("3"))

	acc.FlushHourly(context.Background())

	if got := acc.PendingCount("admin-1"); got != 0 {
		t.Fatalf("expected empty buffer after flush, got %d pending", got)
	}
	if len(tp.Sent()) != 1 {
		t.Fatalf("expected exactly one combined message, got %d", len(tp.Sent()))
	}
	if _, ok := repo.LastDigestSent("admin-1"); !ok {
		t.Fatal("expected lastDigestSent to be updated")
	}
}

func TestAccumulator_FailedFlushKeepsBuffer(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	seedAdmin(repo, domain.FrequencyHourly)
	tp := mailer.NewRecorderTransport()
	tp.Err = errors.New("smtp down")
	acc := newAccumulator(repo, tp, nil)

	acc.Add("admin-1", job("1"))
	acc.Add("admin-1", job("2"))
	acc.Add("admin-1", job("3"))

	acc.FlushHourly(context.Background())

	if got := acc.PendingCount("admin-1"); got != 3 {
		t.Fatalf("expected all 3 jobs kept after failed flush, got %d", got)
	}
	if _, ok := repo.LastDigestSent("admin-1"); ok {
		t.Fatal("lastDigestSent must not move on failure")
	}

	// Next run retries with the same items once the transport recovers.
	tp.Err = nil
	acc.FlushHourly(context.Background())
	if got := acc.PendingCount("admin-1"); got != 0 {
		t.Fatalf("expected buffer cleared on retry, got %d", got)
	}
}

func TestAccumulator_HourlyFlushSkipsDisabledAndEmpty(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	settings := domain.DefaultSettings()
	settings.EmailFrequency = domain.FrequencyHourly
	settings.Enabled = false
	repo.AddRecipient(domain.Admin{ID: "admin-1", UserID: "user-1", Settings: settings, SettingsValid: true},
		"alex@example.com", "Alex")

	tp := mailer.NewRecorderTransport()
	acc := newAccumulator(repo, tp, nil)
	acc.Add("admin-1", job("1"))

	acc.FlushHourly(context.Background())
	if len(tp.Sent()) != 0 {
		t.Fatal("disabled admin must not receive a digest")
	}
}

func TestAccumulator_DailyFlushToleranceWindow(t *testing.T) {
	tests := []struct {
		name   string
		minute int
		want   int // sends
	}{
		{"09:03 is inside the tolerance window", 3, 1},
		{"09:06 is outside the tolerance window", 6, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := repository.NewMockAdminRepository()
			seedAdmin(repo, domain.FrequencyDaily) // digestTime 09:00, timezone UTC
			tp := mailer.NewRecorderTransport()

			now := time.Date(2025, 6, 15, 9, tc.minute, 0, 0, time.UTC)
			acc := newAccumulator(repo, tp, func() time.Time { return now })
			acc.Add("admin-1", job("1"))

			acc.FlushDaily(context.Background())
			if got := len(tp.Sent()); got != tc.want {
				t.Fatalf("expected %d sends, got %d", tc.want, got)
			}
		})
	}
}

func TestAccumulator_DailyFlushUsesAdminTimezone(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	settings := domain.DefaultSettings()
	settings.EmailFrequency = domain.FrequencyDaily
	settings.DigestTime = "09:00"
	settings.QuietHours.Timezone = "America/New_York"
	repo.AddRecipient(domain.Admin{ID: "admin-1", UserID: "user-1", Settings: settings, SettingsValid: true},
		"alex@example.com", "Alex")
	tp := mailer.NewRecorderTransport()

	// 13:02 UTC is 09:02 in New York during DST.
	now := time.Date(2025, 6, 15, 13, 2, 0, 0, time.UTC)
	acc := newAccumulator(repo, tp, func() time.Time { return now })
	acc.Add("admin-1", job("1"))

	acc.FlushDaily(context.Background())
	if len(tp.Sent()) != 1 {
		t.Fatal("expected a send at the admin's local digest time")
	}
}

func TestAccumulator_DailyFlushExcludesUnparseableSettings(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	settings := domain.DefaultSettings()
	settings.EmailFrequency = domain.FrequencyDaily
	repo.AddRecipient(domain.Admin{ID: "admin-1", UserID: "user-1", Settings: settings, SettingsValid: false},
		"alex@example.com", "Alex")
	tp := mailer.NewRecorderTransport()

	now := time.Date(2025, 6, 15, 9, 1, 0, 0, time.UTC)
	acc := newAccumulator(repo, tp, func() time.Time { return now })
	acc.Add("admin-1", job("1"))

	acc.FlushDaily(context.Background())
	if len(tp.Sent()) != 0 {
		t.Fatal("admin with unparseable settings must be skipped from the daily run")
	}
}

func TestAccumulator_ManualDigestEmptyBufferIsNoop(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	seedAdmin(repo, domain.FrequencyDaily)
	tp := mailer.NewRecorderTransport()
	acc := newAccumulator(repo, tp, nil)

	sent, err := acc.SendManualDigest(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatal("empty buffer must not produce a digest")
	}
	if len(tp.Sent()) != 0 {
		t.Fatal("no message expected for an empty buffer")
	}
}

func TestAccumulator_ManualDigestSendsAndClears(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	seedAdmin(repo, domain.FrequencyDaily)
	tp := mailer.NewRecorderTransport()
	acc := newAccumulator(repo, tp, nil)

	acc.Add("admin-1", job("1"))
	sent, err := acc.SendManualDigest(context.Background(), "admin-1")
	if err != nil || !sent {
		t.Fatalf("expected a successful manual digest, sent=%v err=%v", sent, err)
	}
	if got := acc.PendingCount("admin-1"); got != 0 {
		t.Fatalf("expected cleared buffer, got %d", got)
	}
}

func TestAccumulator_JobsAddedDuringSendSurviveCommit(t *testing.T) {
	repo := repository.NewMockAdminRepository()
	seedAdmin(repo, domain.FrequencyHourly)

	// Transport that appends a job mid-send, simulating a racing producer.
	tp := &midSendTransport{}
	acc := newAccumulator(repo, tp, nil)
	tp.acc = acc

	acc.Add("admin-1", job("1"))
	acc.FlushHourly(context.Background())

	if got := acc.PendingCount("admin-1"); got != 1 {
		t.Fatalf("job added during send must remain pending, got %d", got)
	}
}

type midSendTransport struct {
	acc *digest.Accumulator
}

func (t *midSendTransport) Send(_ context.Context, _ mailer.Message) (*mailer.SendResult, error) {
	t.acc.Add("admin-1", job("late"))
	return &mailer.SendResult{MessageID: "msg-1"}, nil
}
