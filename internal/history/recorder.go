// Package history persists check results and derives uptime from them.
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"sentinel-monitor/internal/models"
)

// ErrMonitorGone is returned when the parent monitor was deleted before the
// entry could be written.
var ErrMonitorGone = errors.New("monitor no longer exists")

// InsufficientData is the uptime reported when no entries fall in the window.
const InsufficientData = -1

// UptimeWindow is the window Uptime24h looks at.
const UptimeWindow = 24 * time.Hour

// MonitorRef points at one monitor row of either kind.
type MonitorRef struct {
	Kind models.MonitorKind
	ID   uint
}

// CertificateRef and AppRef build refs for the two monitor kinds.
func CertificateRef(id uint) MonitorRef { return MonitorRef{Kind: models.KindCertificate, ID: id} }
func AppRef(id uint) MonitorRef         { return MonitorRef{Kind: models.KindApplication, ID: id} }

func (r MonitorRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

func (r MonitorRef) model() (any, error) {
	switch r.Kind {
	case models.KindCertificate:
		return &models.CertificateMonitor{}, nil
	case models.KindApplication:
		return &models.AppMonitor{}, nil
	default:
		return nil, fmt.Errorf("unknown monitor kind %q", r.Kind)
	}
}

func (r MonitorRef) column() string {
	if r.Kind == models.KindCertificate {
		return "certificate_monitor_id"
	}
	return "app_monitor_id"
}

// Recorder appends immutable history entries.
type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRecorder creates a recorder on db.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Append writes entries for ref in order, in one transaction. The foreign
// key of each entry is set from ref. When the monitor no longer exists
// nothing is written and ErrMonitorGone is returned.
func (r *Recorder) Append(ctx context.Context, ref MonitorRef, entries ...models.CheckHistory) error {
	if len(entries) == 0 {
		return nil
	}
	parent, err := ref.model()
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(parent).Where("id = ?", ref.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up %s: %w", ref, err)
		}
		if count == 0 {
			return ErrMonitorGone
		}

		for i := range entries {
			id := ref.ID
			e := entries[i]
			e.ID = 0
			e.CertificateMonitorID, e.AppMonitorID = nil, nil
			if ref.Kind == models.KindCertificate {
				e.CertificateMonitorID = &id
			} else {
				e.AppMonitorID = &id
			}
			if e.CheckedAt.IsZero() {
				e.CheckedAt = r.now()
			}
			// sqlite compares timestamps as text, so keep one zone.
			e.CheckedAt = e.CheckedAt.UTC()
			if err := tx.Create(&e).Error; err != nil {
				return fmt.Errorf("failed to append %s history for %s: %w", e.CheckType, ref, err)
			}
			entries[i].ID = e.ID
		}
		return nil
	})
}

// List returns the newest entries for ref, optionally filtered by check
// type. A limit <= 0 returns everything.
func (r *Recorder) List(ctx context.Context, ref MonitorRef, checkType models.CheckType, limit int) ([]models.CheckHistory, error) {
	q := r.db.WithContext(ctx).Where(ref.column()+" = ?", ref.ID)
	if checkType != "" {
		q = q.Where("check_type = ?", checkType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.CheckHistory
	if err := q.Order("checked_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", ref, err)
	}
	return out, nil
}

// Uptime24h returns the rounded share of up entries for ref and checkType
// over the last 24 hours, or InsufficientData when there are none.
func (r *Recorder) Uptime24h(ctx context.Context, ref MonitorRef, checkType models.CheckType) (int, error) {
	var statuses []models.CheckStatus
	err := r.db.WithContext(ctx).
		Model(&models.CheckHistory{}).
		Where(ref.column()+" = ? AND check_type = ? AND checked_at >= ?", ref.ID, checkType, r.now().Add(-UptimeWindow).UTC()).
		Pluck("status", &statuses).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute uptime for %s: %w", ref, err)
	}
	return ComputeUptime(statuses), nil
}

// ComputeUptime returns round(100*U/N) where U counts healthy statuses, or
// InsufficientData for an empty slice.
func ComputeUptime(statuses []models.CheckStatus) int {
	if len(statuses) == 0 {
		return InsufficientData
	}
	up := 0
	for _, s := range statuses {
		if s == models.StatusUp || s == models.StatusOK {
			up++
		}
	}
	return int(math.Round(100 * float64(up) / float64(len(statuses))))
}
