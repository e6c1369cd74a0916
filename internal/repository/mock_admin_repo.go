package repository

import (
	"context"
	"sync"
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// MockAdminRepository is a hand-written, in-memory implementation of
// AdminRepository used in unit tests. No mock-generation library needed.
type MockAdminRepository struct {
	mu         sync.RWMutex
	admins     map[string]*domain.Admin
	contacts   map[string]struct{ Email, Name string } // keyed by admin ID
	digestSent map[string]time.Time

	// Optional error overrides — set in tests to simulate failure paths.
	ListRecipientsErr error
	GetAdminErr       error
	CreateAdminErr    error
	UpdateSettingsErr error
}

func NewMockAdminRepository() *MockAdminRepository {
	return &MockAdminRepository{
		admins:     make(map[string]*domain.Admin),
		contacts:   make(map[string]struct{ Email, Name string }),
		digestSent: make(map[string]time.Time),
	}
}

// AddRecipient seeds an admin with contact details for a test.
func (m *MockAdminRepository) AddRecipient(admin domain.Admin, email, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := admin
	m.admins[admin.ID] = &clone
	m.contacts[admin.ID] = struct{ Email, Name string }{email, name}
}

// LastDigestSent reports the last recorded digest time for an admin.
func (m *MockAdminRepository) LastDigestSent(adminID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.digestSent[adminID]
	return t, ok
}

func (m *MockAdminRepository) ListRecipients(_ context.Context) ([]*domain.Recipient, error) {
	if m.ListRecipientsErr != nil {
		return nil, m.ListRecipientsErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Recipient
	for id, admin := range m.admins {
		contact := m.contacts[id]
		clone := *admin
		out = append(out, &domain.Recipient{Admin: clone, Email: contact.Email, Name: contact.Name})
	}
	return out, nil
}

func (m *MockAdminRepository) GetRecipient(_ context.Context, adminID string) (*domain.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	admin, ok := m.admins[adminID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	contact := m.contacts[adminID]
	clone := *admin
	return &domain.Recipient{Admin: clone, Email: contact.Email, Name: contact.Name}, nil
}

func (m *MockAdminRepository) GetAdmin(_ context.Context, adminID string) (*domain.Admin, error) {
	if m.GetAdminErr != nil {
		return nil, m.GetAdminErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	admin, ok := m.admins[adminID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *admin
	return &clone, nil
}

func (m *MockAdminRepository) GetAdminByUserID(_ context.Context, userID string) (*domain.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, admin := range m.admins {
		if admin.UserID == userID {
			clone := *admin
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockAdminRepository) CreateAdmin(_ context.Context, admin *domain.Admin) error {
	if m.CreateAdminErr != nil {
		return m.CreateAdminErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *admin
	m.admins[admin.ID] = &clone
	return nil
}

func (m *MockAdminRepository) UpdateSettings(_ context.Context, adminID string, settings domain.NotificationSettings) error {
	if m.UpdateSettingsErr != nil {
		return m.UpdateSettingsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, ok := m.admins[adminID]
	if !ok {
		return domain.ErrNotFound
	}
	admin.Settings = settings
	admin.SettingsValid = true
	return nil
}

func (m *MockAdminRepository) UpdateLastDigestSent(_ context.Context, adminID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin, ok := m.admins[adminID]; ok {
		t := sentAt
		admin.LastDigestSent = &t
	}
	m.digestSent[adminID] = sentAt
	return nil
}
