package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EmailFrequency selects the delivery channel for an admin's notifications.
type EmailFrequency string

const (
	FrequencyImmediate EmailFrequency = "immediate"
	FrequencyHourly    EmailFrequency = "hourly"
	FrequencyDaily     EmailFrequency = "daily"
)

func (f EmailFrequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily:
		return true
	}
	return false
}

// QuietHours is a recipient-local window during which non-critical
// notifications are suppressed. Start and End are "HH:MM" clock strings.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Contains reports whether now falls inside the window, evaluated in the
// configured timezone. A window with start > end crosses midnight and
// contains now when now >= start OR now < end; otherwise start <= now < end.
// Malformed clock strings or timezones make the window inert (never contains).
func (q QuietHours) Contains(now time.Time) bool {
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil {
		return false
	}

	local := now.In(q.Location())
	minute := local.Hour()*60 + local.Minute()

	if start > end {
		return minute >= start || minute < end
	}
	return minute >= start && minute < end
}

// Location resolves the configured timezone, falling back to UTC when the
// name is empty or unknown.
func (q QuietHours) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SeverityFilter drops events below a minimum severity. An empty MinSeverity
// means no floor.
type SeverityFilter struct {
	MinSeverity Severity `json:"minSeverity"`
}

// NotificationSettings is the per-admin configuration, persisted as JSON and
// merged with defaults on every read.
type NotificationSettings struct {
	Enabled        bool               `json:"enabled"`
	EmailFrequency EmailFrequency     `json:"emailFrequency"`
	DigestTime     string             `json:"digestTime"`
	Events         map[EventType]bool `json:"events"`
	QuietHours     QuietHours         `json:"quietHours"`
	SeverityFilter SeverityFilter     `json:"severityFilter"`
}

// DefaultSettings returns the documented defaults: notifications on,
// immediate delivery, 09:00 digest, all events opted in, quiet hours off.
func DefaultSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:        true,
		EmailFrequency: FrequencyImmediate,
		DigestTime:     "09:00",
		Events:         map[EventType]bool{},
		QuietHours: QuietHours{
			Enabled:  false,
			Start:    "22:00",
			End:      "08:00",
			Timezone: "UTC",
		},
		SeverityFilter: SeverityFilter{},
	}
}

// EventEnabled reports whether the admin receives the given event type.
// Only an explicit false opts out; absence means opted in.
func (s NotificationSettings) EventEnabled(t EventType) bool {
	enabled, ok := s.Events[t]
	return !ok || enabled
}

// settingsDoc mirrors NotificationSettings with pointer fields so absent keys
// can be told apart from zero values when overlaying onto defaults.
type settingsDoc struct {
	Enabled        *bool              `json:"enabled"`
	EmailFrequency *string            `json:"emailFrequency"`
	DigestTime     *string            `json:"digestTime"`
	Events         map[EventType]bool `json:"events"`
	QuietHours     *struct {
		Enabled  *bool   `json:"enabled"`
		Start    *string `json:"start"`
		End      *string `json:"end"`
		Timezone *string `json:"timezone"`
	} `json:"quietHours"`
	SeverityFilter *struct {
		MinSeverity *string `json:"minSeverity"`
	} `json:"severityFilter"`
}

// ParseSettings decodes persisted settings, overlaying known fields onto the
// defaults. It never fails in the sense that the returned settings are always
// usable: on malformed JSON the defaults are returned unchanged and the error
// describes what was wrong. Unknown keys are ignored; individually invalid
// values (bad frequency, bad clock string) silently keep their default.
func ParseSettings(raw []byte) (NotificationSettings, error) {
	out := DefaultSettings()
	if len(raw) == 0 {
		return out, nil
	}

	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out, fmt.Errorf("decode settings: %w", err)
	}

	if doc.Enabled != nil {
		out.Enabled = *doc.Enabled
	}
	if doc.EmailFrequency != nil {
		if f := EmailFrequency(*doc.EmailFrequency); f.IsValid() {
			out.EmailFrequency = f
		}
	}
	if doc.DigestTime != nil {
		if _, err := ParseClock(*doc.DigestTime); err == nil {
			out.DigestTime = *doc.DigestTime
		}
	}
	if doc.Events != nil {
		out.Events = doc.Events
	}
	if q := doc.QuietHours; q != nil {
		if q.Enabled != nil {
			out.QuietHours.Enabled = *q.Enabled
		}
		if q.Start != nil {
			if _, err := ParseClock(*q.Start); err == nil {
				out.QuietHours.Start = *q.Start
			}
		}
		if q.End != nil {
			if _, err := ParseClock(*q.End); err == nil {
				out.QuietHours.End = *q.End
			}
		}
		if q.Timezone != nil {
			if _, err := time.LoadLocation(*q.Timezone); err == nil {
				out.QuietHours.Timezone = *q.Timezone
			}
		}
	}
	if f := doc.SeverityFilter; f != nil && f.MinSeverity != nil {
		if s := Severity(*f.MinSeverity); s.IsValid() {
			out.SeverityFilter.MinSeverity = s
		}
	}

	return out, nil
}

// ApplyPartial merges a partial settings document onto s, validating every
// supplied value. Unlike ParseSettings this is strict: it is the write path,
// and a caller sending garbage should hear about it.
func (s *NotificationSettings) ApplyPartial(raw []byte) error {
	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode settings update: %w", err)
	}

	if doc.EmailFrequency != nil && !EmailFrequency(*doc.EmailFrequency).IsValid() {
		return ErrInvalidFrequency
	}
	if doc.DigestTime != nil {
		if _, err := ParseClock(*doc.DigestTime); err != nil {
			return ErrInvalidClock
		}
	}
	if q := doc.QuietHours; q != nil {
		if q.Start != nil {
			if _, err := ParseClock(*q.Start); err != nil {
				return ErrInvalidClock
			}
		}
		if q.End != nil {
			if _, err := ParseClock(*q.End); err != nil {
				return ErrInvalidClock
			}
		}
		if q.Timezone != nil {
			if _, err := time.LoadLocation(*q.Timezone); err != nil {
				return ErrInvalidTimezone
			}
		}
	}
	if f := doc.SeverityFilter; f != nil && f.MinSeverity != nil {
		if ms := *f.MinSeverity; ms != "" && !Severity(ms).IsValid() {
			return ErrInvalidSeverity
		}
	}

	if doc.Enabled != nil {
		s.Enabled = *doc.Enabled
	}
	if doc.EmailFrequency != nil {
		s.EmailFrequency = EmailFrequency(*doc.EmailFrequency)
	}
	if doc.DigestTime != nil {
		s.DigestTime = *doc.DigestTime
	}
	for t, enabled := range doc.Events {
		if s.Events == nil {
			s.Events = map[EventType]bool{}
		}
		s.Events[t] = enabled
	}
	if q := doc.QuietHours; q != nil {
		if q.Enabled != nil {
			s.QuietHours.Enabled = *q.Enabled
		}
		if q.Start != nil {
			s.QuietHours.Start = *q.Start
		}
		if q.End != nil {
			s.QuietHours.End = *q.End
		}
		if q.Timezone != nil {
			s.QuietHours.Timezone = *q.Timezone
		}
	}
	if f := doc.SeverityFilter; f != nil && f.MinSeverity != nil {
		s.SeverityFilter.MinSeverity = Severity(*f.MinSeverity)
	}

	return nil
}

// ParseClock converts an "HH:MM" string to minutes since midnight. The format
// is strict: exactly two digits, a colon, two digits.
func ParseClock(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, ErrInvalidClock
	}
	for i := 0; i < 5; i++ {
		if i == 2 {
			continue
		}
		if clock[i] < '0' || clock[i] > '9' {
			return 0, ErrInvalidClock
		}
	}
	h := int(clock[0]-'0')*10 + int(clock[1]-'0')
	m := int(clock[3]-'0')*10 + int(clock[4]-'0')
	if h > 23 || m > 59 {
		return 0, ErrInvalidClock
	}
	return h*60 + m, nil
}
