package mailer

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// Postmark error codes that mean the recipient address is permanently
// unusable — retrying cannot help.
const (
	pmErrInvalidEmailRequest = 300
	pmErrInactiveRecipient   = 406
)

// PostmarkTransport delivers via Postmark's transactional API.
type PostmarkTransport struct {
	client *postmark.Client
}

func NewPostmarkTransport(serverToken, accountToken string) *PostmarkTransport {
	return &PostmarkTransport{
		client: postmark.NewClient(serverToken, accountToken),
	}
}

// Send posts the message to Postmark. API-level rejections for invalid or
// inactive recipients come back wrapped as terminal errors so workers skip
// the retry ladder for them.
func (t *PostmarkTransport) Send(ctx context.Context, msg Message) (*SendResult, error) {
	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		HTMLBody:   msg.HTML,
		Tag:        msg.Tag,
		TrackOpens: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		sendErr := fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
		switch resp.ErrorCode {
		case pmErrInvalidEmailRequest, pmErrInactiveRecipient:
			return nil, domain.Terminal(sendErr)
		}
		return nil, sendErr
	}

	return &SendResult{MessageID: resp.MessageID}, nil
}

var _ Transport = (*PostmarkTransport)(nil)
