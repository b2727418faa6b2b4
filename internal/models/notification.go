package models

import (
	"time"

	"gorm.io/gorm"
)

// ChannelKind is one of the closed set of notification channel kinds.
type ChannelKind string

const (
	ChannelWebhook ChannelKind = "webhook"
	ChannelSlack   ChannelKind = "slack"
	ChannelEmail   ChannelKind = "email"
)

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelWebhook, ChannelSlack, ChannelEmail:
		return true
	}
	return false
}

// NotificationConfig is a configured alert destination. It applies to every
// monitor, not to one in particular.
type NotificationConfig struct {
	ID                 uint        `gorm:"primarykey" json:"id"`
	Name               string      `gorm:"not null" json:"name"`
	Kind               ChannelKind `gorm:"type:varchar(16);not null" json:"kind"`
	Destination        string      `gorm:"not null" json:"destination"` // URL or email address
	Secret             string      `json:"-"`                           // HMAC key for signed webhooks
	SecretConfigured   bool        `gorm:"-" json:"secret_configured"`
	Enabled            bool        `gorm:"not null;index" json:"enabled"`
	NotifyOnCompletion bool        `json:"notify_on_completion"`
	NotifyOnCritical   bool        `json:"notify_on_critical"`
	MinScore           int         `json:"min_score"` // scan notifications only fire when risk score <= MinScore
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// AfterFind exposes whether a signing secret is set without the secret itself.
func (c *NotificationConfig) AfterFind(tx *gorm.DB) error {
	c.SecretConfigured = c.Secret != ""
	return nil
}

// NotificationLog records one channel send attempt.
type NotificationLog struct {
	ID       uint        `gorm:"primarykey" json:"id"`
	ConfigID uint        `gorm:"index" json:"config_id"`
	Channel  ChannelKind `gorm:"type:varchar(16)" json:"channel"`
	Event    string      `gorm:"type:varchar(32);index" json:"event"`
	Subject  string      `json:"subject"`
	Status   string      `gorm:"type:varchar(16)" json:"status"` // success/failed
	Error    string      `json:"error,omitempty"`
	SentAt   time.Time   `gorm:"index" json:"sent_at"`
}
