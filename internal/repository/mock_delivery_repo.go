package repository

import (
	"context"
	"sync"
	"time"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// MockDeliveryRepository is an in-memory DeliveryRepository for unit tests.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr      error
	GetByIDErr     error
	// CreateErrFor fails Create only for the given admin IDs, letting tests
	// exercise per-admin failure isolation.
	CreateErrFor map[string]error
}

func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries:   make(map[string]*domain.Delivery),
		CreateErrFor: make(map[string]error),
	}
}

// All returns a snapshot of every stored delivery.
func (m *MockDeliveryRepository) All() []*domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		clone := *d
		out = append(out, &clone)
	}
	return out
}

func (m *MockDeliveryRepository) Create(_ context.Context, d *domain.Delivery) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if err, ok := m.CreateErrFor[d.AdminID]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.deliveries[d.ID] = &clone
	return nil
}

func (m *MockDeliveryRepository) GetByID(_ context.Context, id string) (*domain.Delivery, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

func (m *MockDeliveryRepository) UpdateStatus(_ context.Context, id string, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deliveries[id]; ok {
		d.Status = status
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MockDeliveryRepository) MarkSent(_ context.Context, id, providerMsgID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deliveries[id]; ok {
		d.Status = domain.DeliverySent
		d.ProviderMsgID = &providerMsgID
		d.SentAt = &sentAt
	}
	return nil
}

func (m *MockDeliveryRepository) MarkFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deliveries[id]; ok {
		d.Status = domain.DeliveryFailed
		d.ErrorMessage = &errMsg
		d.NextRetryAt = nil
	}
	return nil
}

func (m *MockDeliveryRepository) ScheduleRetry(_ context.Context, id string, retryCount int, nextRetry time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deliveries[id]; ok {
		d.Status = domain.DeliveryFailed
		d.RetryCount = retryCount
		d.NextRetryAt = &nextRetry
		d.ErrorMessage = &errMsg
	}
	return nil
}

func (m *MockDeliveryRepository) FindDueRetries(_ context.Context) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var due []*domain.Delivery
	for _, d := range m.deliveries {
		if d.Status == domain.DeliveryFailed && d.RetryCount < d.MaxRetries &&
			d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			clone := *d
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (m *MockDeliveryRepository) FindStranded(_ context.Context, olderThan time.Time) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stranded []*domain.Delivery
	for _, d := range m.deliveries {
		switch d.Status {
		case domain.DeliveryPending, domain.DeliveryQueued, domain.DeliveryProcessing:
			if d.UpdatedAt.Before(olderThan) {
				clone := *d
				stranded = append(stranded, &clone)
			}
		}
	}
	return stranded, nil
}

func (m *MockDeliveryRepository) Stats(_ context.Context) (*domain.QueueStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s domain.QueueStats
	for _, d := range m.deliveries {
		switch d.Status {
		case domain.DeliveryPending, domain.DeliveryQueued:
			s.Waiting++
		case domain.DeliveryProcessing:
			s.Active++
		case domain.DeliverySent:
			s.Completed++
		case domain.DeliveryFailed:
			s.Failed++
		}
	}
	return &s, nil
}

func (m *MockDeliveryRepository) PurgeCompleted(_ context.Context, olderThan time.Time, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, d := range m.deliveries {
		if d.Status == domain.DeliverySent && d.SentAt != nil && d.SentAt.Before(olderThan) {
			delete(m.deliveries, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockDeliveryRepository) PurgeFailed(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, d := range m.deliveries {
		if d.Status == domain.DeliveryFailed && d.RetryCount >= d.MaxRetries && d.UpdatedAt.Before(olderThan) {
			delete(m.deliveries, id)
			purged++
		}
	}
	return purged, nil
}
