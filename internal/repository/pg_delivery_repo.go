package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

type pgDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeliveryRepository returns a DeliveryRepository backed by PostgreSQL.
func NewPgDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepository{pool: pool}
}

const deliveryColumns = `
	id, admin_id, path, severity, job, status, retry_count, max_retries,
	next_retry_at, sent_at, provider_msg_id, error_message, created_at, updated_at`

func (r *pgDeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	job, err := json.Marshal(d.Job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO deliveries
			(id, admin_id, path, severity, job, status, retry_count, max_retries,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())`,
		d.ID, d.AdminID, d.Path, d.Severity, job, d.Status,
		d.RetryCount, d.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *pgDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (r *pgDeliveryRepository) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE deliveries SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (r *pgDeliveryRepository) MarkSent(ctx context.Context, id, providerMsgID string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = 'sent', provider_msg_id = $1, sent_at = $2,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $3`, providerMsgID, sentAt, id)
	return err
}

func (r *pgDeliveryRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = 'failed', error_message = $1, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $2`, errMsg, id)
	return err
}

func (r *pgDeliveryRepository) ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetry time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = 'failed', retry_count = $1, next_retry_at = $2,
		    error_message = $3, updated_at = NOW()
		WHERE id = $4`, retryCount, nextRetry, errMsg, id)
	return err
}

func (r *pgDeliveryRepository) FindDueRetries(ctx context.Context) ([]*domain.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status = 'failed'
		  AND retry_count < max_retries
		  AND next_retry_at <= NOW()
		LIMIT 500`)
	if err != nil {
		return nil, fmt.Errorf("find due retries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) FindStranded(ctx context.Context, olderThan time.Time) ([]*domain.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status IN ('pending','queued','processing')
		  AND updated_at < $1
		LIMIT 500`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("find stranded: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) Stats(ctx context.Context) (*domain.QueueStats, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending','queued')),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM deliveries`)

	var s domain.QueueStats
	if err := row.Scan(&s.Waiting, &s.Active, &s.Completed, &s.Failed); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &s, nil
}

func (r *pgDeliveryRepository) PurgeCompleted(ctx context.Context, olderThan time.Time, keep int) (int64, error) {
	// Rows fall out either by age or by the newest-N cap, whichever bites first.
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM deliveries
		WHERE status = 'sent'
		  AND (sent_at < $1
		       OR id NOT IN (
		           SELECT id FROM deliveries WHERE status = 'sent'
		           ORDER BY sent_at DESC LIMIT $2))`,
		olderThan, keep)
	if err != nil {
		return 0, fmt.Errorf("purge completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgDeliveryRepository) PurgeFailed(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM deliveries
		WHERE status = 'failed'
		  AND retry_count >= max_retries
		  AND updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- helpers ----

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d   domain.Delivery
		job []byte
	)
	err := row.Scan(
		&d.ID, &d.AdminID, &d.Path, &d.Severity, &job, &d.Status,
		&d.RetryCount, &d.MaxRetries, &d.NextRetryAt, &d.SentAt,
		&d.ProviderMsgID, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(job, &d.Job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &d, nil
}

func scanDeliveries(rows pgx.Rows) ([]*domain.Delivery, error) {
	var result []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
