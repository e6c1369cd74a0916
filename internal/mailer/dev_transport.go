package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevTransport writes outbound mail to disk instead of sending it. Used in
// local runs where no Postmark tokens are configured.
type DevTransport struct {
	dir string
}

func NewDevTransport(dir string) *DevTransport {
	return &DevTransport{dir: dir}
}

func (t *DevTransport) Send(_ context.Context, msg Message) (*SendResult, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("dev transport: create dir: %w", err)
	}

	id := uuid.New().String()
	name := fmt.Sprintf("%s_%s_%s.html",
		time.Now().Format("20060102_150405"),
		sanitize(msg.To),
		id[:8],
	)
	body := fmt.Sprintf("<!-- To: %s | Subject: %s -->\n%s", msg.To, msg.Subject, msg.HTML)
	if err := os.WriteFile(filepath.Join(t.dir, name), []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("dev transport: write file: %w", err)
	}

	return &SendResult{MessageID: id}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}

var _ Transport = (*DevTransport)(nil)
