// Package scheduler runs one recurring check per monitor and alerts when a
// monitor starts failing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the monitor does not exist.
	ErrNotFound = errors.New("monitor not found")
	// ErrDisabled is returned when a check is requested for a disabled monitor.
	ErrDisabled = errors.New("monitor is disabled")
	// ErrBusy is returned when a check for the monitor is already running.
	ErrBusy = errors.New("check already in progress")
)

type registration struct {
	entry    cron.EntryID
	spec     string
	schedule cron.Schedule
}

// Registry maps monitor ids to cron entries. It is safe for concurrent use.
type Registry struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[uint]registration
}

// NewRegistry creates a registry with its own cron engine. Jobs recover from
// panics and a job still running when its next tick fires is skipped.
func NewRegistry(logger *zap.Logger) *Registry {
	cl := newCronLogger(logger)
	return &Registry{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		entries: make(map[uint]registration),
	}
}

// Register schedules job for id. It reports false without changes when id
// is already registered.
func (r *Registry) Register(id uint, spec string, job func()) (bool, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return false, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false, nil
	}
	entry := r.cron.Schedule(schedule, cron.FuncJob(job))
	r.entries[id] = registration{entry: entry, spec: spec, schedule: schedule}
	r.logger.Debug("registered", zap.Uint("monitor_id", id), zap.String("schedule", spec))
	return true, nil
}

// Unregister removes the entry for id. Unknown ids are ignored. A run
// already in progress is not interrupted.
func (r *Registry) Unregister(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	if !ok {
		return false
	}
	r.cron.Remove(reg.entry)
	delete(r.entries, id)
	r.logger.Debug("unregistered", zap.Uint("monitor_id", id))
	return true
}

// Registered reports whether id has an entry.
func (r *Registry) Registered(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered monitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Next returns the next fire time after now for id.
func (r *Registry) Next(id uint, now time.Time) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return reg.schedule.Next(now), true
}

// Start starts the cron engine in its own goroutine.
func (r *Registry) Start() {
	r.cron.Start()
	r.logger.Info("scheduler started", zap.Int("monitors", r.Len()))
}

// Stop stops new ticks and waits for running jobs until ctx is done.
func (r *Registry) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
