package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CheckStatus is the classified outcome of a check. The empty value means
// the monitor has not been checked yet.
type CheckStatus string

const (
	StatusUnset   CheckStatus = ""
	StatusOK      CheckStatus = "ok"
	StatusWarning CheckStatus = "warning"
	StatusError   CheckStatus = "error"
	StatusUp      CheckStatus = "up"
	StatusDown    CheckStatus = "down"
)

// MonitorKind distinguishes the two monitor tables.
type MonitorKind string

const (
	KindCertificate MonitorKind = "certificate"
	KindApplication MonitorKind = "application"
)

// CertInterval is the polling interval of a certificate monitor.
type CertInterval string

const (
	CertDaily   CertInterval = "daily"
	CertWeekly  CertInterval = "weekly"
	CertMonthly CertInterval = "monthly"
)

// AppInterval is the polling interval of an application monitor.
type AppInterval string

const (
	App5Min  AppInterval = "5min"
	App15Min AppInterval = "15min"
	App30Min AppInterval = "30min"
	App1Hour AppInterval = "1h"
	App6Hour AppInterval = "6h"
	App1Day  AppInterval = "1d"
)

// CertificateMonitor watches the TLS certificate presented by domain:port.
type CertificateMonitor struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	Domain             string         `gorm:"not null;uniqueIndex:idx_cert_domain_port" json:"domain"`
	Port               int            `gorm:"not null;uniqueIndex:idx_cert_domain_port" json:"port"`
	Interval           CertInterval   `gorm:"type:varchar(16);not null" json:"interval"`
	Enabled            bool           `gorm:"not null;index" json:"enabled"`
	AlertThresholdDays int            `gorm:"not null" json:"alert_threshold_days"`
	NotifyEmail        string         `json:"notify_email,omitempty"`
	LastStatus         CheckStatus    `gorm:"type:varchar(16)" json:"last_status"`
	LastDaysRemaining  *int           `json:"last_days_remaining"`
	LastResult         datatypes.JSON `json:"last_result,omitempty"`
	LastCheckAt        *time.Time     `json:"last_check_at"`
	NextCheckAt        *time.Time     `json:"next_check_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	History []CheckHistory `gorm:"foreignKey:CertificateMonitorID;constraint:OnDelete:CASCADE" json:"-"`
}

// AppMonitor watches the availability and login flow of a web application.
type AppMonitor struct {
	ID                     uint        `gorm:"primarykey" json:"id"`
	Name                   string      `gorm:"not null" json:"name"`
	URL                    string      `gorm:"not null" json:"url"`
	Username               string      `json:"username"`
	PasswordEncrypted      string      `json:"-"`
	PasswordConfigured     bool        `gorm:"-" json:"password_configured"`
	Interval               AppInterval `gorm:"type:varchar(16);not null" json:"interval"`
	Enabled                bool        `gorm:"not null;index" json:"enabled"`
	NotifyEmail            string      `json:"notify_email,omitempty"`
	LastAvailabilityStatus CheckStatus `gorm:"type:varchar(16)" json:"last_availability_status"`
	LastLoginStatus        CheckStatus `gorm:"type:varchar(16)" json:"last_login_status"`
	LastResponseTimeMS     *int64      `json:"last_response_time_ms"`
	LastError              string      `json:"last_error,omitempty"`
	LastCheckAt            *time.Time  `json:"last_check_at"`
	NextCheckAt            *time.Time  `json:"next_check_at"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`

	History []CheckHistory `gorm:"foreignKey:AppMonitorID;constraint:OnDelete:CASCADE" json:"-"`
}

// AfterFind replaces the secret with a configured flag on every read path.
func (m *AppMonitor) AfterFind(tx *gorm.DB) error {
	m.PasswordConfigured = m.PasswordEncrypted != ""
	return nil
}

// OverallStatus combines the availability and login statuses: up only when
// both are up, down when either is down, unset otherwise.
func (m *AppMonitor) OverallStatus() CheckStatus {
	return CombineAppStatus(m.LastAvailabilityStatus, m.LastLoginStatus)
}

// CombineAppStatus folds the two application check statuses into one.
func CombineAppStatus(availability, login CheckStatus) CheckStatus {
	switch {
	case availability == StatusDown || login == StatusDown:
		return StatusDown
	case availability == StatusUp && login == StatusUp:
		return StatusUp
	default:
		return StatusUnset
	}
}
