package mailer

import (
	"context"
	"regexp"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// Message is the outbound email as handed to a Transport.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Tag     string
}

// SendResult carries the provider's delivery identifier. A transport that
// "succeeds" without one is treated as broken by the caller.
type SendResult struct {
	MessageID string
}

// Transport abstracts the outbound email provider.
// Implementations return domain.Terminal-wrapped errors for failures that
// must not be retried (permanently rejected recipients).
type Transport interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// Rendered is the output of template rendering.
type Rendered struct {
	Subject string
	HTML    string
}

// Renderer produces the message bodies for the three message kinds the
// pipeline sends.
type Renderer interface {
	RenderEvent(event domain.Event, data map[string]any, recipientName string) (*Rendered, error)
	RenderDigest(jobs []*domain.Job, recipientName string) (*Rendered, error)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr looks like a deliverable email address.
// Used to discard garbage entries from the configured emergency list.
func ValidAddress(addr string) bool {
	return emailRegex.MatchString(addr)
}
