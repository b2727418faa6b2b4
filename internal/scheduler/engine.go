package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sentinel-monitor/internal/history"
)

const (
	// tickTimeout bounds one scheduled check including its persistence.
	tickTimeout = 2 * time.Minute
	// notifyTimeout bounds the fan-out triggered by one transition.
	notifyTimeout = 30 * time.Second
)

// Deps are the collaborators both schedulers share.
type Deps struct {
	DB       *gorm.DB
	Recorder *history.Recorder
	Notifier Notifier
	Logger   *zap.Logger
}

// engine is the part of a scheduler that does not depend on the monitor kind.
type engine struct {
	db       *gorm.DB
	recorder *history.Recorder
	notifier Notifier
	registry *Registry
	guard    *flightGuard
	logger   *zap.Logger
	now      func() time.Time

	initOnce sync.Once
	alerts   sync.WaitGroup
}

func newEngine(deps Deps, name string) *engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(name)
	return &engine{
		db:       deps.DB,
		recorder: deps.Recorder,
		notifier: deps.Notifier,
		registry: NewRegistry(logger),
		guard:    newFlightGuard(),
		logger:   logger,
		now:      time.Now,
	}
}

// initialize runs load once per engine and starts the cron engine.
func (e *engine) initialize(ctx context.Context, load func(context.Context) (int, error)) error {
	var err error
	ran := false
	e.initOnce.Do(func() {
		ran = true
		var n int
		if n, err = load(ctx); err != nil {
			return
		}
		e.registry.Start()
		e.logger.Info("monitors loaded", zap.Int("registered", n))
	})
	if !ran {
		e.logger.Warn("initialize called more than once, ignoring")
	}
	return err
}

func (e *engine) register(model any, id uint, spec string, job func()) error {
	added, err := e.registry.Register(id, spec, job)
	if err != nil || !added {
		return err
	}
	if next := e.nextCheck(id); next != nil {
		if err := e.db.Model(model).Where("id = ?", id).Update("next_check_at", *next).Error; err != nil {
			e.logger.Warn("failed to store next check time", zap.Uint("monitor_id", id), zap.Error(err))
		}
	}
	return nil
}

// Unregister stops future ticks for id. Unknown ids are ignored.
func (e *engine) Unregister(id uint) {
	e.registry.Unregister(id)
}

// Registered reports whether id has a recurring task.
func (e *engine) Registered(id uint) bool {
	return e.registry.Registered(id)
}

// NextCheck returns when id runs next, or nil when it is not scheduled.
func (e *engine) NextCheck(id uint) *time.Time {
	return e.nextCheck(id)
}

func (e *engine) nextCheck(id uint) *time.Time {
	next, ok := e.registry.Next(id, e.now())
	if !ok {
		return nil
	}
	return &next
}

// Stop halts the cron engine and waits for running checks and pending
// notifications until ctx is done.
func (e *engine) Stop(ctx context.Context) error {
	if err := e.registry.Stop(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		e.alerts.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain waits for notifications dispatched so far.
func (e *engine) Drain() {
	e.alerts.Wait()
}

// tick is the scheduled entry point. A tick finding the monitor busy is
// skipped; failures are logged.
func (e *engine) tick(id uint, run func(context.Context, uint) error) {
	release, ok := e.guard.tryAcquire(id)
	if !ok {
		e.logger.Info("check still running, tick skipped", zap.Uint("monitor_id", id))
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	err := run(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDisabled), errors.Is(err, history.ErrMonitorGone):
		e.logger.Debug("tick had nothing to do", zap.Uint("monitor_id", id), zap.Error(err))
	default:
		e.logger.Error("scheduled check failed", zap.Uint("monitor_id", id), zap.Error(err))
	}
}

// checkNow waits for the monitor's slot and runs fn while holding it.
func (e *engine) checkNow(ctx context.Context, id uint, fn func() error) error {
	release, err := e.guard.acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer release()
	return fn()
}

// dispatch sends a notification in the background. Panics and errors stay
// inside the goroutine.
func (e *engine) dispatch(id uint, send func(ctx context.Context) error) {
	if e.notifier == nil {
		return
	}
	e.alerts.Add(1)
	go func() {
		defer e.alerts.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("notifier panicked", zap.Uint("monitor_id", id), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			e.logger.Warn("notification delivery failed", zap.Uint("monitor_id", id), zap.Error(err))
		}
	}()
}

// updateLast writes the last-status fields. A missing row means the monitor
// was deleted mid-check.
func (e *engine) updateLast(ctx context.Context, model any, id uint, fields map[string]any) error {
	res := e.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update monitor %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return history.ErrMonitorGone
	}
	return nil
}

func loadMonitor[T any](ctx context.Context, db *gorm.DB, id uint) (*T, error) {
	var m T
	err := db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load monitor %d: %w", id, err)
	}
	return &m, nil
}
