package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/queue"
)

func item(id string, s domain.Severity) queue.Item {
	return queue.Item{DeliveryID: id, Severity: s}
}

func TestPriorityQueue_BasicEnqueueDequeue(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	if err := q.Enqueue(item("1", domain.SeverityNormal)); err != nil {
		t.Fatal(err)
	}

	got, ok := q.Dequeue(ctx)
	if !ok {
		t.Fatal("expected item, got nothing")
	}
	if got.DeliveryID != "1" {
		t.Fatalf("expected id=1, got %s", got.DeliveryID)
	}
}

func TestPriorityQueue_SeverityOrdering(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	// Enqueue in reverse severity order; dequeue must still serve the most
	// severe first.
	_ = q.Enqueue(item("low", domain.SeverityLow))
	_ = q.Enqueue(item("normal", domain.SeverityNormal))
	_ = q.Enqueue(item("high", domain.SeverityHigh))
	_ = q.Enqueue(item("critical", domain.SeverityCritical))

	first, _ := q.Dequeue(ctx)
	if first.DeliveryID != "critical" {
		t.Fatalf("expected critical first, got %s", first.DeliveryID)
	}
	second, _ := q.Dequeue(ctx)
	if second.DeliveryID != "high" {
		t.Fatalf("expected high second, got %s", second.DeliveryID)
	}
}

func TestPriorityQueue_UnknownSeverityRejected(t *testing.T) {
	q := queue.New()
	if err := q.Enqueue(item("1", domain.Severity("urgent"))); err == nil {
		t.Fatal("expected an error for an unknown severity")
	}
}

func TestPriorityQueue_DequeueRespectsContext(t *testing.T) {
	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue(ctx)
		if ok {
			t.Error("expected ok=false on cancelled context")
		}
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

func TestPriorityQueue_Depths(t *testing.T) {
	q := queue.New()

	_ = q.Enqueue(item("1", domain.SeverityCritical))
	_ = q.Enqueue(item("2", domain.SeverityNormal))
	_ = q.Enqueue(item("3", domain.SeverityNormal))

	critical, high, normal, low := q.Depths()
	if critical != 1 || high != 0 || normal != 2 || low != 0 {
		t.Fatalf("unexpected depths: %d/%d/%d/%d", critical, high, normal, low)
	}
}

func TestPriorityQueue_EnqueueBulk(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	accepted, err := q.EnqueueBulk([]queue.Item{
		item("1", domain.SeverityHigh),
		item("2", domain.SeverityNormal),
		item("3", domain.SeverityCritical),
	})
	if err != nil || accepted != 3 {
		t.Fatalf("accepted=%d err=%v, want 3 accepted", accepted, err)
	}

	got, _ := q.Dequeue(ctx)
	if got.DeliveryID != "3" {
		t.Fatalf("critical must come out first, got %s", got.DeliveryID)
	}
}

func TestPriorityQueue_EnqueueBulkStopsAtBadItem(t *testing.T) {
	q := queue.New()

	accepted, err := q.EnqueueBulk([]queue.Item{
		item("1", domain.SeverityNormal),
		item("2", "bogus"),
		item("3", domain.SeverityNormal),
	})
	if err == nil {
		t.Fatal("expected error for unroutable item")
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1 (items before the bad one)", accepted)
	}
}
