package repository

import (
	"context"
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// DeliveryRepository is the durable half of the delivery queue: every
// immediate-path job becomes a row, and the row's status machine
// (pending → queued → processing → sent/failed) carries the at-least-once
// guarantee across restarts.
type DeliveryRepository interface {
	// Create inserts rows one at a time even during fan-out so one admin's
	// constraint failure cannot veto another admin's delivery.
	Create(ctx context.Context, d *domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
	MarkSent(ctx context.Context, id string, providerMsgID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetry time.Time, errMsg string) error
	FindDueRetries(ctx context.Context) ([]*domain.Delivery, error)
	// FindStranded returns non-terminal rows (pending/queued/processing) that
	// have not progressed since olderThan. After a crash the in-memory queue
	// is empty, so these rows are invisible to workers until re-enqueued.
	FindStranded(ctx context.Context, olderThan time.Time) ([]*domain.Delivery, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)

	// Retention for postmortem inspection: completed rows are kept for a
	// bounded window capped at keep entries, failed rows for a longer window.
	PurgeCompleted(ctx context.Context, olderThan time.Time, keep int) (int64, error)
	PurgeFailed(ctx context.Context, olderThan time.Time) (int64, error)
}
