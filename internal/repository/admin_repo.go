package repository

import (
	"context"
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// AdminRepository defines persistence for admins and their linked users.
// The pgx implementation is in pg_admin_repo.go; tests use a hand-written
// mock (mock_admin_repo.go).
type AdminRepository interface {
	// ListRecipients returns every admin joined with its user's contact
	// details in a single batched query.
	ListRecipients(ctx context.Context) ([]*domain.Recipient, error)
	GetRecipient(ctx context.Context, adminID string) (*domain.Recipient, error)
	GetAdmin(ctx context.Context, adminID string) (*domain.Admin, error)
	GetAdminByUserID(ctx context.Context, userID string) (*domain.Admin, error)
	CreateAdmin(ctx context.Context, admin *domain.Admin) error
	UpdateSettings(ctx context.Context, adminID string, settings domain.NotificationSettings) error
	UpdateLastDigestSent(ctx context.Context, adminID string, sentAt time.Time) error
}
