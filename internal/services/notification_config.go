package services

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sentinel-monitor/internal/models"
)

// NotificationConfigInput creates or edits a notification config. Nil
// pointers keep the stored value on update.
type NotificationConfigInput struct {
	Name               string
	Kind               models.ChannelKind
	Destination        string
	Secret             *string
	Enabled            *bool
	NotifyOnCompletion *bool
	NotifyOnCritical   *bool
	MinScore           *int
}

// NotificationConfigService stores alert destinations.
type NotificationConfigService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewNotificationConfigService creates the service.
func NewNotificationConfigService(db *gorm.DB, logger *zap.Logger) *NotificationConfigService {
	return &NotificationConfigService{db: db, logger: logger}
}

// List returns every config in id order.
func (s *NotificationConfigService) List(ctx context.Context) ([]models.NotificationConfig, error) {
	var configs []models.NotificationConfig
	if err := s.db.WithContext(ctx).Order("id").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification configs: %w", err)
	}
	return configs, nil
}

// Get returns one config.
func (s *NotificationConfigService) Get(ctx context.Context, id uint) (*models.NotificationConfig, error) {
	return find[models.NotificationConfig](ctx, s.db, id)
}

// Create stores a new config. Configs are enabled unless told otherwise.
func (s *NotificationConfigService) Create(ctx context.Context, in NotificationConfigInput) (*models.NotificationConfig, error) {
	cfg := models.NotificationConfig{
		Name:        strings.TrimSpace(in.Name),
		Kind:        in.Kind,
		Destination: strings.TrimSpace(in.Destination),
		Enabled:     true,
		MinScore:    100,
	}
	applyConfigInput(&cfg, in)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification config: %w", err)
	}
	cfg.SecretConfigured = cfg.Secret != ""
	s.logger.Info("notification config created", zap.Uint("config_id", cfg.ID), zap.String("kind", string(cfg.Kind)))
	return &cfg, nil
}

// Update edits a config.
func (s *NotificationConfigService) Update(ctx context.Context, id uint, in NotificationConfigInput) (*models.NotificationConfig, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		cfg.Name = name
	}
	if in.Kind != "" {
		cfg.Kind = in.Kind
	}
	if dest := strings.TrimSpace(in.Destination); dest != "" {
		cfg.Destination = dest
	}
	applyConfigInput(cfg, in)
	if err := validateConfig(*cfg); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to update notification config: %w", err)
	}
	cfg.SecretConfigured = cfg.Secret != ""
	return cfg, nil
}

// Delete removes a config. Its send log is kept.
func (s *NotificationConfigService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.NotificationConfig{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification config: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Logs returns the most recent send attempts for a config.
func (s *NotificationConfigService) Logs(ctx context.Context, id uint, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var logs []models.NotificationLog
	err := s.db.WithContext(ctx).Where("config_id = ?", id).
		Order("sent_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}

func applyConfigInput(cfg *models.NotificationConfig, in NotificationConfigInput) {
	if in.Secret != nil {
		cfg.Secret = *in.Secret
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	if in.NotifyOnCompletion != nil {
		cfg.NotifyOnCompletion = *in.NotifyOnCompletion
	}
	if in.NotifyOnCritical != nil {
		cfg.NotifyOnCritical = *in.NotifyOnCritical
	}
	if in.MinScore != nil {
		cfg.MinScore = *in.MinScore
	}
}

func validateConfig(cfg models.NotificationConfig) error {
	if cfg.Name == "" {
		return invalid("name is required")
	}
	if !cfg.Kind.Valid() {
		return invalid("unknown channel kind %q", cfg.Kind)
	}
	if cfg.MinScore < 0 || cfg.MinScore > 100 {
		return invalid("min score must be between 0 and 100")
	}
	switch cfg.Kind {
	case models.ChannelEmail:
		// An empty destination is allowed; monitor events use the
		// monitor's own address.
		if cfg.Destination != "" {
			if _, err := mail.ParseAddress(cfg.Destination); err != nil {
				return invalid("destination is not an email address")
			}
		}
	default:
		u, err := url.Parse(cfg.Destination)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("destination must be an http(s) URL")
		}
	}
	return nil
}
