package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/scheduler"
)

var (
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a monitor for the same endpoint exists.
	ErrConflict = errors.New("monitor already exists")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid input")
)

// Columns an edit may write. Result columns belong to the scheduler.
var (
	certificateColumns = []string{"domain", "port", "interval", "enabled", "alert_threshold_days", "notify_email", "updated_at"}
	appColumns         = []string{"name", "url", "username", "password_encrypted", "interval", "enabled", "notify_email", "updated_at"}
)

// Defaults for new certificate monitors.
const (
	DefaultAlertThresholdDays = 14
)

// CertificateRegistrar and AppRegistrar are the scheduler operations the
// service needs to keep recurring tasks in line with edits.
type CertificateRegistrar interface {
	Register(m models.CertificateMonitor) error
	Unregister(id uint)
}

type AppRegistrar interface {
	Register(m models.AppMonitor) error
	Unregister(id uint)
}

// Encrypter seals credentials before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// CertificateInput creates or edits a certificate monitor. Zero values mean
// "keep" on update and "default" on create.
type CertificateInput struct {
	Domain             string
	Port               int
	Interval           models.CertInterval
	Enabled            *bool
	AlertThresholdDays *int
	NotifyEmail        *string
}

// AppInput creates or edits an application monitor. A nil Password keeps
// the stored one; an empty one clears it.
type AppInput struct {
	Name        string
	URL         string
	Username    *string
	Password    *string
	Interval    models.AppInterval
	Enabled     *bool
	NotifyEmail *string
}

// CertificateView is a monitor with its 24h uptime.
type CertificateView struct {
	models.CertificateMonitor
	Uptime24h int `json:"uptime_24h"`
}

// AppView is a monitor with its overall status and 24h uptimes.
type AppView struct {
	models.AppMonitor
	Status                models.CheckStatus `json:"status"`
	AvailabilityUptime24h int                `json:"availability_uptime_24h"`
	LoginUptime24h        int                `json:"login_uptime_24h"`
}

// MonitorService manages monitors and keeps the schedulers in sync.
type MonitorService struct {
	db       *gorm.DB
	certs    CertificateRegistrar
	apps     AppRegistrar
	cipher   Encrypter
	recorder *history.Recorder
	logger   *zap.Logger
}

// NewMonitorService creates a monitor service.
func NewMonitorService(db *gorm.DB, certs CertificateRegistrar, apps AppRegistrar, cipher Encrypter, recorder *history.Recorder, logger *zap.Logger) *MonitorService {
	return &MonitorService{db: db, certs: certs, apps: apps, cipher: cipher, recorder: recorder, logger: logger}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ListCertificates returns every certificate monitor.
func (s *MonitorService) ListCertificates(ctx context.Context) ([]CertificateView, error) {
	var monitors []models.CertificateMonitor
	if err := s.db.WithContext(ctx).Order("id").Find(&monitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list certificate monitors: %w", err)
	}
	views := make([]CertificateView, 0, len(monitors))
	for _, m := range monitors {
		v, err := s.certificateView(ctx, m)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// GetCertificate returns one certificate monitor.
func (s *MonitorService) GetCertificate(ctx context.Context, id uint) (*CertificateView, error) {
	m, err := find[models.CertificateMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	v, err := s.certificateView(ctx, *m)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *MonitorService) certificateView(ctx context.Context, m models.CertificateMonitor) (CertificateView, error) {
	uptime, err := s.recorder.Uptime24h(ctx, history.CertificateRef(m.ID), models.CheckCertificate)
	if err != nil {
		return CertificateView{}, err
	}
	return CertificateView{CertificateMonitor: m, Uptime24h: uptime}, nil
}

// CreateCertificate stores a new certificate monitor and schedules it.
func (s *MonitorService) CreateCertificate(ctx context.Context, in CertificateInput) (*models.CertificateMonitor, error) {
	m := models.CertificateMonitor{
		Domain:             normalizeDomain(in.Domain),
		Port:               in.Port,
		Interval:           in.Interval,
		Enabled:            true,
		AlertThresholdDays: DefaultAlertThresholdDays,
	}
	if m.Port == 0 {
		m.Port = 443
	}
	if m.Interval == "" {
		m.Interval = models.CertDaily
	}
	if in.Enabled != nil {
		m.Enabled = *in.Enabled
	}
	if in.AlertThresholdDays != nil {
		m.AlertThresholdDays = *in.AlertThresholdDays
	}
	if in.NotifyEmail != nil {
		m.NotifyEmail = strings.TrimSpace(*in.NotifyEmail)
	}
	if err := validateCertificate(m); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CertificateMonitor{}).
		Where("domain = ? AND port = ?", m.Domain, m.Port).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s:%d", ErrConflict, m.Domain, m.Port)
	}

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to create certificate monitor: %w", err)
	}
	if err := s.certs.Register(m); err != nil {
		s.logger.Error("failed to schedule certificate monitor", zap.Uint("monitor_id", m.ID), zap.Error(err))
	}
	s.logger.Info("certificate monitor created", zap.Uint("monitor_id", m.ID), zap.String("domain", m.Domain))
	return &m, nil
}

// UpdateCertificate edits a certificate monitor. The recurring task is
// replaced when the interval or enabled flag changes.
func (s *MonitorService) UpdateCertificate(ctx context.Context, id uint, in CertificateInput) (*models.CertificateMonitor, error) {
	m, err := find[models.CertificateMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	before := *m

	if in.Domain != "" {
		m.Domain = normalizeDomain(in.Domain)
	}
	if in.Port != 0 {
		m.Port = in.Port
	}
	if in.Interval != "" {
		m.Interval = in.Interval
	}
	if in.Enabled != nil {
		m.Enabled = *in.Enabled
	}
	if in.AlertThresholdDays != nil {
		m.AlertThresholdDays = *in.AlertThresholdDays
	}
	if in.NotifyEmail != nil {
		m.NotifyEmail = strings.TrimSpace(*in.NotifyEmail)
	}
	if err := validateCertificate(*m); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(m).Select(certificateColumns).Updates(m).Error; err != nil {
		return nil, fmt.Errorf("failed to update certificate monitor: %w", err)
	}
	if m, err = find[models.CertificateMonitor](ctx, s.db, id); err != nil {
		return nil, err
	}
	if before.Interval != m.Interval || before.Enabled != m.Enabled {
		s.certs.Unregister(m.ID)
		if err := s.certs.Register(*m); err != nil {
			s.logger.Error("failed to reschedule certificate monitor", zap.Uint("monitor_id", m.ID), zap.Error(err))
		}
	}
	return m, nil
}

// DeleteCertificate unschedules and removes a monitor with its history.
func (s *MonitorService) DeleteCertificate(ctx context.Context, id uint) error {
	s.certs.Unregister(id)
	res := s.db.WithContext(ctx).Delete(&models.CertificateMonitor{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete certificate monitor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info("certificate monitor deleted", zap.Uint("monitor_id", id))
	return nil
}

// ListApps returns every application monitor.
func (s *MonitorService) ListApps(ctx context.Context) ([]AppView, error) {
	var monitors []models.AppMonitor
	if err := s.db.WithContext(ctx).Order("id").Find(&monitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list application monitors: %w", err)
	}
	views := make([]AppView, 0, len(monitors))
	for _, m := range monitors {
		v, err := s.appView(ctx, m)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// GetApp returns one application monitor.
func (s *MonitorService) GetApp(ctx context.Context, id uint) (*AppView, error) {
	m, err := find[models.AppMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	v, err := s.appView(ctx, *m)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *MonitorService) appView(ctx context.Context, m models.AppMonitor) (AppView, error) {
	ref := history.AppRef(m.ID)
	avail, err := s.recorder.Uptime24h(ctx, ref, models.CheckAvailability)
	if err != nil {
		return AppView{}, err
	}
	login, err := s.recorder.Uptime24h(ctx, ref, models.CheckLogin)
	if err != nil {
		return AppView{}, err
	}
	return AppView{AppMonitor: m, Status: m.OverallStatus(), AvailabilityUptime24h: avail, LoginUptime24h: login}, nil
}

// EnabledAppIDs returns the ids of enabled application monitors in id order.
func (s *MonitorService) EnabledAppIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.AppMonitor{}).Where("enabled = ?", true).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list application monitors: %w", err)
	}
	return ids, nil
}

// CreateApp stores a new application monitor and schedules it.
func (s *MonitorService) CreateApp(ctx context.Context, in AppInput) (*models.AppMonitor, error) {
	m := models.AppMonitor{
		Name:     strings.TrimSpace(in.Name),
		URL:      strings.TrimSpace(in.URL),
		Interval: in.Interval,
		Enabled:  true,
	}
	if m.Interval == "" {
		m.Interval = models.App15Min
	}
	if in.Username != nil {
		m.Username = *in.Username
	}
	if in.Enabled != nil {
		m.Enabled = *in.Enabled
	}
	if in.NotifyEmail != nil {
		m.NotifyEmail = strings.TrimSpace(*in.NotifyEmail)
	}
	if err := validateApp(m); err != nil {
		return nil, err
	}
	if err := s.setPassword(&m, in.Password); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to create application monitor: %w", err)
	}
	m.PasswordConfigured = m.PasswordEncrypted != ""
	if err := s.apps.Register(m); err != nil {
		s.logger.Error("failed to schedule application monitor", zap.Uint("monitor_id", m.ID), zap.Error(err))
	}
	s.logger.Info("application monitor created", zap.Uint("monitor_id", m.ID), zap.String("name", m.Name))
	return &m, nil
}

// UpdateApp edits an application monitor. The recurring task is replaced
// when the interval or enabled flag changes.
func (s *MonitorService) UpdateApp(ctx context.Context, id uint, in AppInput) (*models.AppMonitor, error) {
	m, err := find[models.AppMonitor](ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	before := *m

	if in.Name != "" {
		m.Name = strings.TrimSpace(in.Name)
	}
	if in.URL != "" {
		m.URL = strings.TrimSpace(in.URL)
	}
	if in.Username != nil {
		m.Username = *in.Username
	}
	if in.Interval != "" {
		m.Interval = in.Interval
	}
	if in.Enabled != nil {
		m.Enabled = *in.Enabled
	}
	if in.NotifyEmail != nil {
		m.NotifyEmail = strings.TrimSpace(*in.NotifyEmail)
	}
	if err := validateApp(*m); err != nil {
		return nil, err
	}
	if err := s.setPassword(m, in.Password); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(m).Select(appColumns).Updates(m).Error; err != nil {
		return nil, fmt.Errorf("failed to update application monitor: %w", err)
	}
	if m, err = find[models.AppMonitor](ctx, s.db, id); err != nil {
		return nil, err
	}
	if before.Interval != m.Interval || before.Enabled != m.Enabled {
		s.apps.Unregister(m.ID)
		if err := s.apps.Register(*m); err != nil {
			s.logger.Error("failed to reschedule application monitor", zap.Uint("monitor_id", m.ID), zap.Error(err))
		}
	}
	return m, nil
}

// DeleteApp unschedules and removes a monitor with its history.
func (s *MonitorService) DeleteApp(ctx context.Context, id uint) error {
	s.apps.Unregister(id)
	res := s.db.WithContext(ctx).Delete(&models.AppMonitor{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete application monitor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info("application monitor deleted", zap.Uint("monitor_id", id))
	return nil
}

func (s *MonitorService) setPassword(m *models.AppMonitor, password *string) error {
	if password == nil {
		return nil
	}
	if *password == "" {
		m.PasswordEncrypted = ""
		return nil
	}
	sealed, err := s.cipher.Encrypt(*password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	m.PasswordEncrypted = sealed
	return nil
}

func validateCertificate(m models.CertificateMonitor) error {
	if m.Domain == "" {
		return invalid("domain is required")
	}
	if m.Port < 1 || m.Port > 65535 {
		return invalid("port %d out of range", m.Port)
	}
	if m.AlertThresholdDays < 0 {
		return invalid("alert threshold must not be negative")
	}
	if _, err := scheduler.CertSchedule(m.Interval); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func validateApp(m models.AppMonitor) error {
	if m.Name == "" {
		return invalid("name is required")
	}
	if !strings.HasPrefix(m.URL, "http://") && !strings.HasPrefix(m.URL, "https://") {
		return invalid("url must start with http:// or https://")
	}
	if _, err := scheduler.AppSchedule(m.Interval); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// normalizeDomain strips a scheme, path and case from user input.
func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}

func find[T any](ctx context.Context, db *gorm.DB, id uint) (*T, error) {
	var m T
	err := db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
