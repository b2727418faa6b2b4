package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sentinel-monitor/internal/checker"
	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/models"
)

// CertificateOutcome is what one certificate check produced.
type CertificateOutcome struct {
	Monitor  models.CertificateMonitor `json:"monitor"`
	Result   checker.CertificateResult `json:"result"`
	Status   models.CheckStatus        `json:"status"`
	Previous models.CheckStatus        `json:"previous_status"`
	Notified bool                      `json:"notified"`
}

// CertificateScheduler owns the recurring checks of certificate monitors.
type CertificateScheduler struct {
	*engine
	inspector CertificateInspector
}

// NewCertificateScheduler creates a scheduler; call Initialize to start it.
func NewCertificateScheduler(deps Deps, inspector CertificateInspector) *CertificateScheduler {
	return &CertificateScheduler{
		engine:    newEngine(deps, "scheduler.cert"),
		inspector: inspector,
	}
}

// Initialize registers every enabled certificate monitor and starts the
// cron engine. Later calls do nothing.
func (s *CertificateScheduler) Initialize(ctx context.Context) error {
	return s.initialize(ctx, func(ctx context.Context) (int, error) {
		var monitors []models.CertificateMonitor
		if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&monitors).Error; err != nil {
			return 0, fmt.Errorf("failed to load certificate monitors: %w", err)
		}
		for _, m := range monitors {
			if err := s.Register(m); err != nil {
				s.logger.Error("failed to register monitor", zap.Uint("monitor_id", m.ID), zap.Error(err))
			}
		}
		return s.registry.Len(), nil
	})
}

// Register schedules m. Disabled or already registered monitors are left alone.
func (s *CertificateScheduler) Register(m models.CertificateMonitor) error {
	if !m.Enabled {
		return nil
	}
	spec, err := CertSchedule(m.Interval)
	if err != nil {
		return err
	}
	id := m.ID
	return s.register(&models.CertificateMonitor{}, id, spec, func() {
		s.tick(id, s.run)
	})
}

// ExecuteCheck runs one check for id right away, waiting for a running
// scheduled check of the same monitor to finish first.
func (s *CertificateScheduler) ExecuteCheck(ctx context.Context, id uint) (*CertificateOutcome, error) {
	var out *CertificateOutcome
	err := s.checkNow(ctx, id, func() error {
		var err error
		out, err = s.check(ctx, id)
		return err
	})
	return out, err
}

func (s *CertificateScheduler) run(ctx context.Context, id uint) error {
	_, err := s.check(ctx, id)
	return err
}

func (s *CertificateScheduler) check(ctx context.Context, id uint) (*CertificateOutcome, error) {
	m, err := loadMonitor[models.CertificateMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, ErrDisabled
	}

	port := m.Port
	if port == 0 {
		port = checker.DefaultTLSPort
	}
	result := s.inspector.Inspect(ctx, m.Domain, port)
	status := checker.ClassifyCertificate(result, m.AlertThresholdDays)
	out := &CertificateOutcome{Result: result, Status: status, Previous: m.LastStatus}

	snapshot, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode certificate result: %w", err)
	}
	checkedAt := result.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}

	histErr := s.recorder.Append(ctx, history.CertificateRef(id), models.CheckHistory{
		CheckType:     models.CheckCertificate,
		Status:        status,
		DaysRemaining: result.DaysRemaining,
		LatencyMS:     result.LatencyMS,
		Error:         result.Error,
		Result:        datatypes.JSON(snapshot),
		CheckedAt:     checkedAt,
	})
	if errors.Is(histErr, history.ErrMonitorGone) {
		return nil, histErr
	}

	next := s.nextCheck(id)
	updErr := s.updateLast(ctx, &models.CertificateMonitor{}, id, map[string]any{
		"last_status":         status,
		"last_days_remaining": result.DaysRemaining,
		"last_result":         datatypes.JSON(snapshot),
		"last_check_at":       checkedAt,
		"next_check_at":       next,
	})
	if errors.Is(updErr, history.ErrMonitorGone) {
		return nil, updErr
	}

	m.LastStatus = status
	m.LastDaysRemaining = result.DaysRemaining
	m.LastResult = datatypes.JSON(snapshot)
	m.LastCheckAt = &checkedAt
	m.NextCheckAt = next
	out.Monitor = *m

	s.logger.Info("certificate checked",
		zap.Uint("monitor_id", id),
		zap.String("domain", m.Domain),
		zap.String("status", string(status)),
		zap.String("previous", string(out.Previous)),
	)

	if certFailing(status) && !certFailing(out.Previous) {
		monitor := *m
		s.dispatch(id, func(ctx context.Context) error {
			return s.notifier.NotifyCertificate(ctx, monitor, result, status)
		})
		out.Notified = s.notifier != nil
	}

	if err := multierr.Combine(histErr, updErr); err != nil {
		return out, err
	}
	return out, nil
}

// certFailing reports whether a certificate status should alert.
func certFailing(s models.CheckStatus) bool {
	return s == models.StatusWarning || s == models.StatusError
}
