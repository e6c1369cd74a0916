package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// TemplateRenderer is the default html/template-backed Renderer. Deployments
// with a real design system inject their own Renderer; this one keeps the
// pipeline self-contained.
type TemplateRenderer struct {
	frontendURL string
	event       *template.Template
	digest      *template.Template
}

const eventTemplate = `<html><body>
<h2>[{{ .Severity }}] {{ .Type }}</h2>
<p>Hello {{ .Name }},</p>
<p>{{ .Description }}</p>
{{ if .Service }}<p>Service: <strong>{{ .Service }}</strong></p>{{ end }}
{{ if .Details }}<ul>{{ range $k, $v := .Details }}<li><strong>{{ $k }}</strong>: {{ $v }}</li>{{ end }}</ul>{{ end }}
<p><a href="{{ .FrontendURL }}/admin/alerts">Open the admin dashboard</a></p>
</body></html>`

const digestTemplate = `<html><body>
<h2>Alert digest ({{ len .Jobs }} events)</h2>
<p>Hello {{ .Name }},</p>
{{ range .Jobs }}
<h3>[{{ .Event.Severity }}] {{ .Event.Type }}</h3>
<p>{{ .Event.Description }}</p>
{{ end }}
<p><a href="{{ .FrontendURL }}/admin/alerts">Open the admin dashboard</a></p>
</body></html>`

func NewTemplateRenderer(frontendURL string) *TemplateRenderer {
	return &TemplateRenderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		event:       template.Must(template.New("event").Parse(eventTemplate)),
		digest:      template.Must(template.New("digest").Parse(digestTemplate)),
	}
}

func (r *TemplateRenderer) RenderEvent(event domain.Event, data map[string]any, recipientName string) (*Rendered, error) {
	details := make(map[string]any, len(event.Details)+len(data))
	for k, v := range event.Details {
		details[k] = v
	}
	for k, v := range data {
		details[k] = v
	}

	var buf strings.Builder
	err := r.event.Execute(&buf, map[string]any{
		"Severity":    event.Severity,
		"Type":        event.Type,
		"Name":        orFallback(recipientName, "admin"),
		"Description": event.Description,
		"Service":     event.Service,
		"Details":     details,
		"FrontendURL": r.frontendURL,
	})
	if err != nil {
		return nil, fmt.Errorf("render event: %w", err)
	}

	return &Rendered{
		Subject: fmt.Sprintf("[%s] %s", strings.ToUpper(string(event.Severity)), event.Type),
		HTML:    buf.String(),
	}, nil
}

func (r *TemplateRenderer) RenderDigest(jobs []*domain.Job, recipientName string) (*Rendered, error) {
	var buf strings.Builder
	err := r.digest.Execute(&buf, map[string]any{
		"Jobs":        jobs,
		"Name":        orFallback(recipientName, "admin"),
		"FrontendURL": r.frontendURL,
	})
	if err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}

	return &Rendered{
		Subject: fmt.Sprintf("Alert digest: %d events", len(jobs)),
		HTML:    buf.String(),
	}, nil
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var _ Renderer = (*TemplateRenderer)(nil)
