package queue

import (
	"context"
	"fmt"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// PriorityQueue dispatches items to one of four buffered channels, one per
// severity tier, so queue priority and the eligibility severity scale can
// never drift apart.
//
// Buffer sizes reflect expected traffic ratios:
//
//	Critical:   500  — must never accumulate; small buffer applies back-pressure quickly
//	High:     1 000  — urgent but survivable
//	Normal:   5 000  — bulk of traffic
//	Low:      2 000  — background / best-effort
//
// Workers dequeue via a cascading non-blocking select, which guarantees that
// more severe items are always served before less severe ones, while still
// allowing fair competition between normal and low when the urgent tiers are
// empty.
type PriorityQueue struct {
	critical chan Item
	high     chan Item
	normal   chan Item
	low      chan Item
}

func New() *PriorityQueue {
	return &PriorityQueue{
		critical: make(chan Item, 500),
		high:     make(chan Item, 1000),
		normal:   make(chan Item, 5000),
		low:      make(chan Item, 2000),
	}
}

// Enqueue places an item on the channel for its severity tier.
// It is non-blocking: if the target channel is full, ErrQueueFull is returned
// immediately rather than blocking the caller.
func (q *PriorityQueue) Enqueue(item Item) error {
	ch, err := q.tier(item.Severity)
	if err != nil {
		return err
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// EnqueueBulk submits a fan-out batch. Items that fit are accepted; the
// first saturated or unroutable item stops the batch and the count of
// accepted items is returned alongside the error, so the caller can settle
// the leftover items individually.
func (q *PriorityQueue) EnqueueBulk(items []Item) (int, error) {
	for i, item := range items {
		if err := q.Enqueue(item); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
// Severity guarantee: critical and high are drained with non-blocking
// selects, in order, before the goroutine enters a fair blocking select
// across all tiers plus the done signal. This prevents starvation of the
// urgent tiers while still letting the worker sleep instead of spinning.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *PriorityQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.critical:
		return item, true
	default:
	}
	select {
	case item := <-q.high:
		return item, true
	default:
	}

	select {
	case item := <-q.critical:
		return item, true
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each severity tier.
// Used for the queue-depth gauges and the stats snapshot.
func (q *PriorityQueue) Depths() (critical, high, normal, low int) {
	return len(q.critical), len(q.high), len(q.normal), len(q.low)
}

func (q *PriorityQueue) tier(s domain.Severity) (chan Item, error) {
	switch s {
	case domain.SeverityCritical:
		return q.critical, nil
	case domain.SeverityHigh:
		return q.high, nil
	case domain.SeverityNormal:
		return q.normal, nil
	case domain.SeverityLow:
		return q.low, nil
	default:
		return nil, fmt.Errorf("unknown severity %q", s)
	}
}
