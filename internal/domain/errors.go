package domain

import "errors"

// Sentinel errors used throughout the application.
// HTTP handlers translate these to status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidEventType = errors.New("event type must not be empty")
	ErrInvalidSeverity  = errors.New("invalid severity: must be low, normal, high, or critical")
	ErrInvalidFrequency = errors.New("invalid email frequency: must be immediate, hourly, or daily")
	ErrInvalidClock     = errors.New("invalid time: must be HH:MM")
	ErrInvalidTimezone  = errors.New("invalid timezone: must be an IANA location name")
	ErrInvalidUserID    = errors.New("user id must not be empty")
	ErrQueueFull        = errors.New("delivery queue is at capacity, try again later")
	ErrNoRecipient      = errors.New("job has no admin email")
	ErrNoMessageID      = errors.New("transport reported success without a message id")
)

// TerminalError marks a delivery failure that must not be retried:
// the transport has told us the recipient address is permanently unusable.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return "terminal: " + e.Err.Error() }

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err so IsTerminal reports true for it.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err (or anything it wraps) is a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
