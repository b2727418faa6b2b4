package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys that override values from the YAML file.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvGoEnv        = "GO_ENV"
	EnvDBPath       = "MONITOR_DB_PATH"
	EnvServerPort   = "MONITOR_SERVER_PORT"
	EnvSecretKey    = "MONITOR_SECRET_KEY"
	EnvDashboardURL = "MONITOR_DASHBOARD_URL"
)

// DefaultPath is where the config file is looked up when CONFIG_PATH is unset.
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Checker       CheckerConfig       `yaml:"checker"`
	Secret        SecretConfig        `yaml:"secret"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scan          ScanConfig          `yaml:"scan"`
	API           APIConfig           `yaml:"api"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite
	Path string `yaml:"path"`
}

// LogConfig controls the rotated log file.
type LogConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Console    *bool  `yaml:"console"`
}

// CheckerConfig holds probe timeouts.
type CheckerConfig struct {
	TLSTimeout          Duration `yaml:"tls_timeout"`
	AvailabilityTimeout Duration `yaml:"availability_timeout"`
	LoginTimeout        Duration `yaml:"login_timeout"`
	UserAgent           string   `yaml:"user_agent"`
}

// SecretConfig holds the key used to encrypt monitor credentials.
type SecretConfig struct {
	Key string `yaml:"key"`
}

// NotificationsConfig represents notification configuration
type NotificationsConfig struct {
	DashboardURL string      `yaml:"dashboard_url"`
	Timeout      Duration    `yaml:"timeout"`
	SOCKS5Proxy  string      `yaml:"socks5_proxy"`
	RatePerSec   float64     `yaml:"rate_per_sec"` // 0 disables pacing
	Burst        int         `yaml:"burst"`
	Email        EmailConfig `yaml:"email"`
}

// EmailConfig represents the SMTP relay used by the email channel
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ScanConfig describes how to launch the external scan engine.
type ScanConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout Duration `yaml:"timeout"`
	// Env holds extra KEY=VALUE entries for the engine process.
	Env []string `yaml:"env"`
	// MaxConcurrent caps scans running at once.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// APIConfig tunes the dashboard API.
type APIConfig struct {
	CheckNowRate  float64 `yaml:"check_now_rate"`
	CheckNowBurst int     `yaml:"check_now_burst"`
}

// Duration decodes YAML strings such as "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// IsProduction reports whether GO_ENV is "production".
func IsProduction() bool {
	return os.Getenv(EnvGoEnv) == "production"
}

// Load reads .env (if present), then the YAML file at path, then applies
// environment overrides and defaults. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Port = v
		}
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		c.Secret.Key = v
	}
	if v := os.Getenv(EnvDashboardURL); v != "" {
		c.Notifications.DashboardURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/monitor.db"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Checker.TLSTimeout <= 0 {
		c.Checker.TLSTimeout = Duration(10 * time.Second)
	}
	if c.Checker.AvailabilityTimeout <= 0 {
		c.Checker.AvailabilityTimeout = Duration(10 * time.Second)
	}
	if c.Checker.LoginTimeout <= 0 {
		c.Checker.LoginTimeout = Duration(15 * time.Second)
	}
	if c.Checker.UserAgent == "" {
		c.Checker.UserAgent = "SentinelMonitor/1.0 (+availability-check)"
	}
	if c.Notifications.Timeout <= 0 {
		c.Notifications.Timeout = Duration(10 * time.Second)
	}
	if c.Notifications.Burst <= 0 {
		c.Notifications.Burst = 1
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}
	if c.Scan.Timeout <= 0 {
		c.Scan.Timeout = Duration(30 * time.Minute)
	}
	if c.Scan.MaxConcurrent <= 0 {
		c.Scan.MaxConcurrent = 2
	}
	if c.API.CheckNowRate <= 0 {
		c.API.CheckNowRate = 0.2
	}
	if c.API.CheckNowBurst <= 0 {
		c.API.CheckNowBurst = 3
	}
}
