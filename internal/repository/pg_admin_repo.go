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

type pgAdminRepository struct {
	pool *pgxpool.Pool
}

// NewPgAdminRepository returns an AdminRepository backed by PostgreSQL.
func NewPgAdminRepository(pool *pgxpool.Pool) AdminRepository {
	return &pgAdminRepository{pool: pool}
}

const recipientColumns = `
	a.id, a.user_id, a.settings, a.last_digest_sent, a.created_at, a.updated_at,
	u.email, u.name`

func (r *pgAdminRepository) ListRecipients(ctx context.Context) ([]*domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recipientColumns+`
		FROM admins a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []*domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *pgAdminRepository) GetRecipient(ctx context.Context, adminID string) (*domain.Recipient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recipientColumns+`
		FROM admins a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`, adminID)

	rec, err := scanRecipient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *pgAdminRepository) GetAdmin(ctx context.Context, adminID string) (*domain.Admin, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, settings, last_digest_sent, created_at, updated_at
		FROM admins WHERE id = $1`, adminID)

	admin, err := scanAdmin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return admin, err
}

func (r *pgAdminRepository) GetAdminByUserID(ctx context.Context, userID string) (*domain.Admin, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, settings, last_digest_sent, created_at, updated_at
		FROM admins WHERE user_id = $1`, userID)

	admin, err := scanAdmin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return admin, err
}

func (r *pgAdminRepository) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	raw, err := json.Marshal(admin.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO admins (id, user_id, settings, last_digest_sent, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NOW(),NOW())`,
		admin.ID, admin.UserID, raw, admin.LastDigestSent,
	)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *pgAdminRepository) UpdateSettings(ctx context.Context, adminID string, settings domain.NotificationSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE admins SET settings = $1, updated_at = NOW() WHERE id = $2`,
		raw, adminID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgAdminRepository) UpdateLastDigestSent(ctx context.Context, adminID string, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE admins SET last_digest_sent = $1, updated_at = NOW() WHERE id = $2`,
		sentAt, adminID)
	return err
}

// ---- helpers ----

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var (
		admin domain.Admin
		raw   []byte
	)
	err := row.Scan(&admin.ID, &admin.UserID, &raw, &admin.LastDigestSent,
		&admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		return nil, err
	}
	settings, parseErr := domain.ParseSettings(raw)
	admin.Settings = settings
	admin.SettingsValid = parseErr == nil
	return &admin, nil
}

func scanRecipient(row pgx.Row) (*domain.Recipient, error) {
	var (
		rec domain.Recipient
		raw []byte
	)
	err := row.Scan(
		&rec.Admin.ID, &rec.Admin.UserID, &raw, &rec.Admin.LastDigestSent,
		&rec.Admin.CreatedAt, &rec.Admin.UpdatedAt,
		&rec.Email, &rec.Name,
	)
	if err != nil {
		return nil, err
	}
	settings, parseErr := domain.ParseSettings(raw)
	rec.Admin.Settings = settings
	rec.Admin.SettingsValid = parseErr == nil
	return &rec, nil
}
