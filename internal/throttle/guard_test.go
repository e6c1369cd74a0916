package throttle_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/throttle"
)

func TestGuard_FirstOccurrencePasses(t *testing.T) {
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), nil, nil)

	if g.ShouldThrottle("health", "service_down") {
		t.Fatal("first occurrence must not be throttled")
	}
}

func TestGuard_SecondOccurrenceInsideWindowIsThrottled(t *testing.T) {
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), nil, nil)

	g.ShouldThrottle("health", "service_down")
	if !g.ShouldThrottle("health", "service_down") {
		t.Fatal("second occurrence inside the window must be throttled")
	}
}

func TestGuard_IndependentKeys(t *testing.T) {
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), nil, nil)

	g.ShouldThrottle("health", "service_down")
	if g.ShouldThrottle("health", "database_error") {
		t.Fatal("a different event type must not share the window")
	}
	if g.ShouldThrottle("auth", "service_down") {
		t.Fatal("a different category must not share the window")
	}
}

func TestGuard_WindowExpiryResets(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), clock, nil)

	g.ShouldThrottle("health", "service_down")
	now = now.Add(16 * time.Minute)
	if g.ShouldThrottle("health", "service_down") {
		t.Fatal("occurrence past the window must not be throttled")
	}
	if !g.ShouldThrottle("health", "service_down") {
		t.Fatal("window must restart after expiry")
	}
}

func TestGuard_ResetClearsSuppression(t *testing.T) {
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), nil, nil)

	g.ShouldThrottle("health", "service_down")
	if !g.ShouldThrottle("health", "service_down") {
		t.Fatal("expected suppression before reset")
	}

	g.Reset("health", "service_down")
	if g.ShouldThrottle("health", "service_down") {
		t.Fatal("next occurrence after reset must pass even inside the old window")
	}
}

func TestGuard_PerWindowCap(t *testing.T) {
	g := throttle.New(15*time.Minute, 3, zap.NewNop(), nil, nil)

	for i := 0; i < 3; i++ {
		if g.ShouldThrottle("health", "high_error_rate") {
			t.Fatalf("occurrence %d is under the cap and must pass", i+1)
		}
	}
	if !g.ShouldThrottle("health", "high_error_rate") {
		t.Fatal("occurrence past the cap must be throttled")
	}
}

func TestGuard_ThrottledHookFires(t *testing.T) {
	var hits int
	g := throttle.New(15*time.Minute, 1, zap.NewNop(), nil, func() { hits++ })

	g.ShouldThrottle("health", "service_down")
	g.ShouldThrottle("health", "service_down")
	g.ShouldThrottle("health", "service_down")

	if hits != 2 {
		t.Fatalf("expected 2 throttled hook calls, got %d", hits)
	}
}
