package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentinel-monitor/internal/progress"
	"sentinel-monitor/internal/services"
)

// ErrTooManyScans is returned when the concurrency cap is reached.
var ErrTooManyScans = errors.New("too many scans running")

// notifyTimeout bounds the completion fan-out of one scan.
const notifyTimeout = 30 * time.Second

// Engine runs one scan.
type Engine interface {
	Run(ctx context.Context, req Request, onProgress func(progress.Event)) (*Report, error)
}

// Notifier receives finished scans.
type Notifier interface {
	NotifyScanCompleted(ctx context.Context, s services.ScanSummary) services.Report
}

// Manager starts scans in the background and publishes their progress.
type Manager struct {
	engine   Engine
	broker   *progress.Broker
	notifier Notifier
	slots    chan struct{}
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager that runs at most maxConcurrent scans.
// notifier may be nil.
func NewManager(engine Engine, broker *progress.Broker, notifier Notifier, maxConcurrent int, logger *zap.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:   engine,
		broker:   broker,
		notifier: notifier,
		slots:    make(chan struct{}, maxConcurrent),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches a scan and returns its id. Progress is published on the
// broker under that id; the last event has Done set.
func (m *Manager) Start(req Request) (string, error) {
	select {
	case m.slots <- struct{}{}:
	default:
		return "", ErrTooManyScans
	}
	if err := m.ctx.Err(); err != nil {
		<-m.slots
		return "", fmt.Errorf("scan manager stopped: %w", err)
	}

	id := uuid.NewString()
	m.broker.Emit(id, progress.Event{Phase: "started", Message: req.Target})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.slots }()
		m.run(id, req)
	}()
	return id, nil
}

func (m *Manager) run(id string, req Request) {
	logger := m.logger.With(zap.String("scan_id", id), zap.String("target", req.Target))
	var (
		report *Report
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic: %v", ErrEngine, r)
			}
		}()
		report, err = m.engine.Run(m.ctx, req, func(ev progress.Event) {
			m.broker.Emit(id, ev)
		})
	}()

	summary := services.ScanSummary{ID: id, Target: req.Target}
	final := progress.Event{Phase: "completed", Done: true}
	if err != nil {
		logger.Warn("scan failed", zap.Error(err))
		summary.Error = err.Error()
		final.Phase = "failed"
		final.Error = err.Error()
	} else {
		summary.RiskScore = report.RiskScore
		summary.FindingCount = len(report.Findings)
		summary.CriticalCount = report.CriticalCount()
		final.Result = report
		logger.Info("scan completed",
			zap.Int("risk_score", report.RiskScore),
			zap.Int("findings", summary.FindingCount),
			zap.Int("critical", summary.CriticalCount),
		)
	}

	if m.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		rep := m.notifier.NotifyScanCompleted(ctx, summary)
		cancel()
		if rep.Err != nil {
			logger.Warn("scan notification failed", zap.Error(rep.Err))
		}
	}
	m.broker.Emit(id, final)
}

// Stop cancels running scans and waits for them to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
