package domain

import "time"

// DeliveryStatus tracks the lifecycle of a queued job.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryQueued     DeliveryStatus = "queued"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Delivery is the durable record of one immediate-path job. The row is the
// source of truth for at-least-once semantics: the in-memory queue only
// carries IDs, and the retry worker re-enqueues due rows after a restart.
type Delivery struct {
	ID            string         `json:"id"`
	AdminID       string         `json:"admin_id"`
	Path          DeliveryPath   `json:"path"`
	Severity      Severity       `json:"severity"`
	Job           Job            `json:"job"`
	Status        DeliveryStatus `json:"status"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	ProviderMsgID *string        `json:"provider_msg_id,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// QueueStats is the observability snapshot exposed by the stats endpoint.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
