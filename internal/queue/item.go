package queue

import "github.com/opsnotify/admin-alerting/internal/domain"

// Item is the minimal data placed on the queue.
// Workers fetch the full Delivery from the DB using the ID,
// keeping the queue lightweight and the durable row authoritative.
type Item struct {
	DeliveryID string
	Severity   domain.Severity
}
