package mailer

import (
	"context"
	"sync"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// RecorderTransport records every message for assertions in unit tests.
// Configure Err / ErrFor / MessageID to steer the outcome.
type RecorderTransport struct {
	mu       sync.Mutex
	messages []Message

	// Err fails every send; ErrFor fails sends to specific addresses.
	Err    error
	ErrFor map[string]error
	// MessageID returned on success. Empty string simulates a provider that
	// acks without an identifier.
	MessageID string
}

func NewRecorderTransport() *RecorderTransport {
	return &RecorderTransport{MessageID: "msg-1", ErrFor: map[string]error{}}
}

func (t *RecorderTransport) Send(_ context.Context, msg Message) (*SendResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	if err, ok := t.ErrFor[msg.To]; ok {
		return nil, err
	}
	t.messages = append(t.messages, msg)
	return &SendResult{MessageID: t.MessageID}, nil
}

// Sent returns a snapshot of everything successfully "sent".
func (t *RecorderTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// StaticRenderer renders fixed content; RenderErr forces a failure.
type StaticRenderer struct {
	RenderErr error
}

func (r *StaticRenderer) RenderEvent(event domain.Event, _ map[string]any, _ string) (*Rendered, error) {
	if r.RenderErr != nil {
		return nil, r.RenderErr
	}
	return &Rendered{Subject: "[" + string(event.Severity) + "] " + string(event.Type), HTML: "<p>event</p>"}, nil
}

func (r *StaticRenderer) RenderDigest(jobs []*domain.Job, _ string) (*Rendered, error) {
	if r.RenderErr != nil {
		return nil, r.RenderErr
	}
	return &Rendered{Subject: "digest", HTML: "<p>digest</p>"}, nil
}

var (
	_ Transport = (*RecorderTransport)(nil)
	_ Renderer  = (*StaticRenderer)(nil)
)
