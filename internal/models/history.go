package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CheckType identifies which probe produced a history entry.
type CheckType string

const (
	CheckCertificate  CheckType = "certificate"
	CheckAvailability CheckType = "availability"
	CheckLogin        CheckType = "login"
)

// ErrImmutableHistory is returned when something tries to update a history row.
var ErrImmutableHistory = errors.New("check history entries are immutable")

// CheckHistory is one persisted check result. Exactly one of the two monitor
// foreign keys is set; rows go away only through the monitor delete cascade.
type CheckHistory struct {
	ID                   uint           `gorm:"primarykey" json:"id"`
	CertificateMonitorID *uint          `gorm:"index" json:"certificate_monitor_id,omitempty"`
	AppMonitorID         *uint          `gorm:"index" json:"app_monitor_id,omitempty"`
	CheckType            CheckType      `gorm:"type:varchar(16);not null;index" json:"check_type"`
	Status               CheckStatus    `gorm:"type:varchar(16);not null" json:"status"`
	DaysRemaining        *int           `json:"days_remaining"`
	LatencyMS            int64          `json:"latency_ms"`
	Error                string         `json:"error,omitempty"`
	Result               datatypes.JSON `json:"result"`
	CheckedAt            time.Time      `gorm:"not null;index" json:"checked_at"`
}

// TableName keeps the table name stable regardless of naming strategy.
func (CheckHistory) TableName() string {
	return "check_history"
}

// BeforeUpdate rejects updates.
func (CheckHistory) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableHistory
}
