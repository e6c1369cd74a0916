package domain

import "time"

// Admin is an administrative notification recipient. Settings are stored as
// schema-free JSON and parsed with fallback-to-defaults on every read.
type Admin struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id"`
	Settings       NotificationSettings `json:"settings"`
	SettingsValid  bool                 `json:"-"`
	LastDigestSent *time.Time           `json:"last_digest_sent,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Recipient is an admin joined with the linked user's contact details, as
// produced by the single batched admins+users read.
type Recipient struct {
	Admin Admin  `json:"admin"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Contact is a cached slice of recipient identity used by the emergency
// fallback path, valid only while younger than the cache TTL.
type Contact struct {
	AdminID       string    `json:"admin_id"`
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	LastRefreshed time.Time `json:"last_refreshed"`
}
