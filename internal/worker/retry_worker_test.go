package worker_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/repository"
	"github.com/opsnotify/admin-alerting/internal/worker"
)

func seedRow(t *testing.T, repo *repository.MockDeliveryRepository, id string, status domain.DeliveryStatus, updatedAt time.Time) *domain.Delivery {
	t.Helper()
	d := &domain.Delivery{
		ID:       id,
		AdminID:  "admin-1",
		Path:     domain.PathImmediate,
		Severity: domain.SeverityHigh,
		Job: domain.Job{
			ID:      "job-" + id,
			AdminID: "admin-1",
			Event: domain.Event{
				Type:        domain.EventServiceDown,
				Severity:    domain.SeverityHigh,
				Description: "service unreachable",
			},
			AdminEmail: "alex@example.com",
		},
		Status:     status,
		MaxRetries: 3,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func drainQueue(t *testing.T, q *queue.PriorityQueue) []string {
	t.Helper()
	var ids []string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		item, ok := q.Dequeue(ctx)
		cancel()
		if !ok {
			return ids
		}
		ids = append(ids, item.DeliveryID)
	}
}

// A row that was queued before a crash never reaches a worker again on its
// own: the in-memory queue restarts empty. The sweep must pick it up once it
// has been stale long enough.
func TestRetryWorker_RequeuesStrandedRows(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	q := queue.New()
	staleAfter := 5 * time.Minute

	old := time.Now().Add(-time.Hour)
	stranded := seedRow(t, repo, "d-stranded", domain.DeliveryQueued, old)
	seedRow(t, repo, "d-fresh", domain.DeliveryQueued, time.Now())

	rw := worker.NewRetryWorker(repo, q, time.Second, staleAfter, zap.NewNop(), nil)
	rw.Sweep(context.Background())

	ids := drainQueue(t, q)
	if len(ids) != 1 || ids[0] != stranded.ID {
		t.Fatalf("expected only the stale row re-enqueued, got %v", ids)
	}

	got, _ := repo.GetByID(context.Background(), stranded.ID)
	if got.Status != domain.DeliveryQueued {
		t.Fatalf("expected status=queued after re-enqueue, got %s", got.Status)
	}
	if !got.UpdatedAt.After(old) {
		t.Fatal("expected the status write to advance updated_at")
	}
}

// Rows abandoned mid-flight (processing) count as stranded too.
func TestRetryWorker_RequeuesStaleProcessingRows(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	q := queue.New()

	old := time.Now().Add(-time.Hour)
	d := seedRow(t, repo, "d-proc", domain.DeliveryProcessing, old)

	rw := worker.NewRetryWorker(repo, q, time.Second, 5*time.Minute, zap.NewNop(), nil)
	rw.Sweep(context.Background())

	ids := drainQueue(t, q)
	if len(ids) != 1 || ids[0] != d.ID {
		t.Fatalf("expected processing row re-enqueued, got %v", ids)
	}
	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryQueued {
		t.Fatalf("expected status=queued, got %s", got.Status)
	}
}

func TestRetryWorker_RequeuesDueFailedRetries(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	q := queue.New()

	d := seedRow(t, repo, "d-failed", domain.DeliveryFailed, time.Now())
	past := time.Now().Add(-time.Minute)
	if err := repo.ScheduleRetry(context.Background(), d.ID, 1, past, "smtp timeout"); err != nil {
		t.Fatal(err)
	}

	rw := worker.NewRetryWorker(repo, q, time.Second, 5*time.Minute, zap.NewNop(), nil)
	rw.Sweep(context.Background())

	ids := drainQueue(t, q)
	if len(ids) != 1 || ids[0] != d.ID {
		t.Fatalf("expected due retry re-enqueued, got %v", ids)
	}
	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryQueued {
		t.Fatalf("expected status=queued, got %s", got.Status)
	}
}

// Sent and exhausted rows stay put.
func TestRetryWorker_SkipsTerminalRows(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	q := queue.New()

	old := time.Now().Add(-time.Hour)
	seedRow(t, repo, "d-sent", domain.DeliverySent, old)
	exhausted := seedRow(t, repo, "d-exhausted", domain.DeliveryFailed, old)
	if err := repo.MarkFailed(context.Background(), exhausted.ID, "invalid recipient"); err != nil {
		t.Fatal(err)
	}

	rw := worker.NewRetryWorker(repo, q, time.Second, 5*time.Minute, zap.NewNop(), nil)
	rw.Sweep(context.Background())

	if ids := drainQueue(t, q); len(ids) != 0 {
		t.Fatalf("expected nothing re-enqueued, got %v", ids)
	}
}
