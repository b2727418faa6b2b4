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

// LoginSkippedMessage is the error of the login result synthesized when the
// availability probe failed.
const LoginSkippedMessage = "skipped: target not reachable"

// AppOutcome is what one application check produced.
type AppOutcome struct {
	Monitor      models.AppMonitor  `json:"monitor"`
	Availability checker.HTTPResult `json:"availability"`
	Login        checker.HTTPResult `json:"login"`
	Status       models.CheckStatus `json:"status"`
	Previous     models.CheckStatus `json:"previous_status"`
	Notified     bool               `json:"notified"`
}

// AppScheduler owns the recurring checks of application monitors.
type AppScheduler struct {
	*engine
	prober   AvailabilityProber
	login    LoginAutomator
	revealer Revealer
}

// NewAppScheduler creates a scheduler; call Initialize to start it.
// revealer decrypts stored passwords right before each login attempt.
func NewAppScheduler(deps Deps, prober AvailabilityProber, login LoginAutomator, revealer Revealer) *AppScheduler {
	return &AppScheduler{
		engine:   newEngine(deps, "scheduler.app"),
		prober:   prober,
		login:    login,
		revealer: revealer,
	}
}

// Initialize registers every enabled application monitor and starts the
// cron engine. Later calls do nothing.
func (s *AppScheduler) Initialize(ctx context.Context) error {
	return s.initialize(ctx, func(ctx context.Context) (int, error) {
		var monitors []models.AppMonitor
		if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&monitors).Error; err != nil {
			return 0, fmt.Errorf("failed to load application monitors: %w", err)
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
func (s *AppScheduler) Register(m models.AppMonitor) error {
	if !m.Enabled {
		return nil
	}
	spec, err := AppSchedule(m.Interval)
	if err != nil {
		return err
	}
	id := m.ID
	return s.register(&models.AppMonitor{}, id, spec, func() {
		s.tick(id, s.run)
	})
}

// ExecuteCheck runs one check for id right away, waiting for a running
// scheduled check of the same monitor to finish first.
func (s *AppScheduler) ExecuteCheck(ctx context.Context, id uint) (*AppOutcome, error) {
	var out *AppOutcome
	err := s.checkNow(ctx, id, func() error {
		var err error
		out, err = s.check(ctx, id)
		return err
	})
	return out, err
}

func (s *AppScheduler) run(ctx context.Context, id uint) error {
	_, err := s.check(ctx, id)
	return err
}

func (s *AppScheduler) check(ctx context.Context, id uint) (*AppOutcome, error) {
	m, err := loadMonitor[models.AppMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, ErrDisabled
	}
	previous := m.OverallStatus()

	availability := s.prober.Probe(ctx, m.URL)
	var login checker.HTTPResult
	if availability.Up() {
		login = s.login.Attempt(ctx, m.URL, m.Username, s.password(m))
	} else {
		login = checker.HTTPResult{
			Status:    models.StatusDown,
			CheckedAt: s.now(),
			Error:     LoginSkippedMessage,
		}
	}
	status := models.CombineAppStatus(availability.Status, login.Status)
	out := &AppOutcome{Availability: availability, Login: login, Status: status, Previous: previous}

	availEntry, err := httpEntry(models.CheckAvailability, availability)
	if err != nil {
		return nil, err
	}
	loginEntry, err := httpEntry(models.CheckLogin, login)
	if err != nil {
		return nil, err
	}
	histErr := s.recorder.Append(ctx, history.AppRef(id), availEntry, loginEntry)
	if errors.Is(histErr, history.ErrMonitorGone) {
		return nil, histErr
	}

	checkedAt := s.now()
	next := s.nextCheck(id)
	latency := availability.LatencyMS
	lastError := availability.Error
	if lastError == "" {
		lastError = login.Error
	}
	updErr := s.updateLast(ctx, &models.AppMonitor{}, id, map[string]any{
		"last_availability_status": availability.Status,
		"last_login_status":        login.Status,
		"last_response_time_ms":    latency,
		"last_error":               lastError,
		"last_check_at":            checkedAt,
		"next_check_at":            next,
	})
	if errors.Is(updErr, history.ErrMonitorGone) {
		return nil, updErr
	}

	m.LastAvailabilityStatus = availability.Status
	m.LastLoginStatus = login.Status
	m.LastResponseTimeMS = &latency
	m.LastError = lastError
	m.LastCheckAt = &checkedAt
	m.NextCheckAt = next
	out.Monitor = *m

	s.logger.Info("application checked",
		zap.Uint("monitor_id", id),
		zap.String("name", m.Name),
		zap.String("availability", string(availability.Status)),
		zap.String("login", string(login.Status)),
		zap.Int64("latency_ms", latency),
	)

	if status == models.StatusDown && previous != models.StatusDown {
		monitor := *m
		s.dispatch(id, func(ctx context.Context) error {
			return s.notifier.NotifyApplication(ctx, monitor, availability, login)
		})
		out.Notified = s.notifier != nil
	}

	if err := multierr.Combine(histErr, updErr); err != nil {
		return out, err
	}
	return out, nil
}

func (s *AppScheduler) password(m *models.AppMonitor) string {
	if s.revealer == nil {
		return m.PasswordEncrypted
	}
	return s.revealer.Reveal(m.PasswordEncrypted)
}

func httpEntry(t models.CheckType, r checker.HTTPResult) (models.CheckHistory, error) {
	snapshot, err := json.Marshal(r)
	if err != nil {
		return models.CheckHistory{}, fmt.Errorf("failed to encode %s result: %w", t, err)
	}
	return models.CheckHistory{
		CheckType: t,
		Status:    r.Status,
		LatencyMS: r.LatencyMS,
		Error:     r.Error,
		Result:    datatypes.JSON(snapshot),
		CheckedAt: r.CheckedAt,
	}, nil
}
