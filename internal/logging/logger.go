package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"sentinel-monitor/internal/config"
)

// Logger names used across the engine.
const (
	NameScheduler = "scheduler"
	NameNotify    = "notify"
	NameScan      = "scan"
	NameAPI       = "api"
	NameDatabase  = "database"
)

// New builds the process logger: JSON lines into a rotated file, teed with a
// console core unless running in production or console output is disabled.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "monitor.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), file, level)

	console := !config.IsProduction()
	if cfg.Console != nil {
		console = *cfg.Console
	}
	if !console {
		return zap.New(fileCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		level,
	)
	return zap.New(zapcore.NewTee(fileCore, consoleCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
