package scheduler

import (
	"context"
	"sync"
)

// flightGuard allows at most one running check per monitor id.
type flightGuard struct {
	mu    sync.Mutex
	slots map[uint]chan struct{}
}

func newFlightGuard() *flightGuard {
	return &flightGuard{slots: make(map[uint]chan struct{})}
}

func (g *flightGuard) slot(id uint) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		g.slots[id] = s
	}
	return s
}

// tryAcquire takes the slot for id without waiting.
func (g *flightGuard) tryAcquire(id uint) (func(), bool) {
	s := g.slot(id)
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	default:
		return nil, false
	}
}

// acquire waits for the slot for id until ctx is done.
func (g *flightGuard) acquire(ctx context.Context, id uint) (func(), error) {
	s := g.slot(id)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
