package throttle

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// record tracks suppression state for one category:event key.
// Created on first occurrence, incremented inside the window, replaced when
// the window elapses, and deleted explicitly on recovery.
type record struct {
	firstSeen time.Time
	count     int
}

// Guard suppresses duplicate alert storms: after maxPerWindow occurrences of
// the same (category, event type) inside the window, further occurrences are
// dropped until the window elapses or the key is reset.
//
// State is process-local and lost on restart, which is acceptable: the guard
// exists for storm suppression, not audit. A multi-instance deployment would
// need a shared store for the map to stay globally correct.
type Guard struct {
	mu           sync.Mutex
	records      map[string]*record
	window       time.Duration
	maxPerWindow int
	logger       *zap.Logger
	now          func() time.Time

	onThrottled func()
}

// New builds a Guard. now and onThrottled may be nil (defaults: time.Now,
// no-op metric hook).
func New(window time.Duration, maxPerWindow int, logger *zap.Logger, now func() time.Time, onThrottled func()) *Guard {
	if now == nil {
		now = time.Now
	}
	if onThrottled == nil {
		onThrottled = func() {}
	}
	if maxPerWindow < 1 {
		maxPerWindow = 1
	}
	return &Guard{
		records:      make(map[string]*record),
		window:       window,
		maxPerWindow: maxPerWindow,
		logger:       logger,
		now:          now,
		onThrottled:  onThrottled,
	}
}

// ShouldThrottle reports whether an occurrence of eventType in category must
// be suppressed, updating the window state as a side effect. The first
// occurrence of a fresh key always passes.
func (g *Guard) ShouldThrottle(category, eventType string) bool {
	key := category + ":" + eventType
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key]
	if !ok || now.Sub(rec.firstSeen) >= g.window {
		g.records[key] = &record{firstSeen: now, count: 1}
		return false
	}

	if rec.count < g.maxPerWindow {
		rec.count++
		return false
	}

	rec.count++
	g.onThrottled()
	g.logger.Info("alert throttled",
		zap.String("key", key),
		zap.Int("occurrences", rec.count),
		zap.Duration("window", g.window),
	)
	return true
}

// Reset forgets the key entirely. Called on confirmed recovery so the next
// failure is reported immediately instead of waiting out a stale window.
func (g *Guard) Reset(category, eventType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, category+":"+eventType)
}
