package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsnotify/admin-alerting/internal/domain"
	"github.com/opsnotify/admin-alerting/internal/mailer"
	"github.com/opsnotify/admin-alerting/internal/queue"
	"github.com/opsnotify/admin-alerting/internal/ratelimiter"
	"github.com/opsnotify/admin-alerting/internal/repository"
	"github.com/opsnotify/admin-alerting/internal/worker"
)

var backoff = []time.Duration{5 * time.Second, 30 * time.Second, 120 * time.Second}

func seedDelivery(t *testing.T, repo *repository.MockDeliveryRepository, email string, retryCount int) *domain.Delivery {
	t.Helper()
	now := time.Now().UTC()
	d := &domain.Delivery{
		ID:       "d-1",
		AdminID:  "admin-1",
		Path:     domain.PathImmediate,
		Severity: domain.SeverityHigh,
		Job: domain.Job{
			ID:      "job-1",
			AdminID: "admin-1",
			Event: domain.Event{
				Type:        domain.EventServiceDown,
				Severity:    domain.SeverityHigh,
				Description: "service unreachable",
			},
			AdminEmail: email,
			AdminName:  "Alex",
			Metadata:   domain.JobMetadata{Timestamp: now, Priority: domain.SeverityHigh},
		},
		Status:     domain.DeliveryQueued,
		RetryCount: retryCount,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func newWorker(repo *repository.MockDeliveryRepository, tp mailer.Transport, renderer mailer.Renderer) *worker.Worker {
	if renderer == nil {
		renderer = &mailer.StaticRenderer{}
	}
	return worker.NewWorker(
		0, queue.New(), repo, renderer, tp,
		ratelimiter.New(1000), "alerts@example.com", backoff,
		zap.NewNop(), nil, nil,
	)
}

func TestWorker_SuccessMarksSent(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	tp.MessageID = "pm-123"
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliverySent {
		t.Fatalf("expected status=sent, got %s", got.Status)
	}
	if got.ProviderMsgID == nil || *got.ProviderMsgID != "pm-123" {
		t.Fatal("expected provider message id to be recorded")
	}
	if len(tp.Sent()) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(tp.Sent()))
	}
}

func TestWorker_MissingEmailFailsTerminally(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryFailed {
		t.Fatalf("expected status=failed, got %s", got.Status)
	}
	if got.NextRetryAt != nil {
		t.Fatal("terminal failure must not schedule a retry")
	}
	if len(tp.Sent()) != 0 {
		t.Fatal("no transport call expected for a job without an address")
	}
}

func TestWorker_TerminalTransportErrorSkipsRetries(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	tp.Err = domain.Terminal(errors.New("inactive recipient"))
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "gone@example.com", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryFailed {
		t.Fatalf("expected status=failed, got %s", got.Status)
	}
	if got.NextRetryAt != nil {
		t.Fatal("terminal transport error must not schedule a retry")
	}
}

func TestWorker_RetryableErrorSchedulesBackoff(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	tp.Err = errors.New("connection reset")
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryFailed {
		t.Fatalf("expected status=failed (awaiting retry), got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", got.RetryCount)
	}
	if got.NextRetryAt == nil {
		t.Fatal("expected a scheduled retry time")
	}
}

func TestWorker_ExhaustedRetriesFailPermanently(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	tp.Err = errors.New("connection reset")
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 3)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryFailed {
		t.Fatalf("expected status=failed, got %s", got.Status)
	}
	if got.NextRetryAt != nil {
		t.Fatal("exhausted delivery must not schedule another retry")
	}
}

func TestWorker_MissingMessageIDIsAFailure(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	tp.MessageID = ""
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status == domain.DeliverySent {
		t.Fatal("an ack without a message id must not count as delivered")
	}
	if got.NextRetryAt == nil {
		t.Fatal("expected a retry to be scheduled")
	}
}

func TestWorker_AlreadySentIsSkipped(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 0)
	_ = repo.MarkSent(context.Background(), d.ID, "pm-old", time.Now().UTC())

	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	if len(tp.Sent()) != 0 {
		t.Fatal("already-sent delivery must not be sent again")
	}
}

func TestWorker_RenderErrorSchedulesRetry(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	renderer := &mailer.StaticRenderer{RenderErr: errors.New("bad template")}
	w := newWorker(repo, tp, renderer)

	d := seedDelivery(t, repo, "alex@example.com", 0)
	w.Process(context.Background(), queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.NextRetryAt == nil {
		t.Fatal("render failure should leave the delivery retryable")
	}
	if len(tp.Sent()) != 0 {
		t.Fatal("nothing must be sent when rendering fails")
	}
}

func TestWorker_ShutdownDuringRateWaitRestoresQueued(t *testing.T) {
	repo := repository.NewMockDeliveryRepository()
	tp := mailer.NewRecorderTransport()
	w := newWorker(repo, tp, nil)

	d := seedDelivery(t, repo, "alex@example.com", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Process(ctx, queue.Item{DeliveryID: d.ID, Severity: d.Severity})

	got, _ := repo.GetByID(context.Background(), d.ID)
	if got.Status != domain.DeliveryQueued {
		t.Fatalf("expected row back in queued for the recovery sweep, got %s", got.Status)
	}
	if len(tp.Sent()) != 0 {
		t.Fatal("nothing must be sent once shutdown has begun")
	}
}
