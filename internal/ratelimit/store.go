// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Store hands out a limiter per key, created on first use with the default
// rate and burst. A nil *Store allows everything.
type Store struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewStore returns a store. A rate <= 0 means unlimited.
func NewStore(perSecond float64, burst int) *Store {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Limiter returns the limiter for key.
func (s *Store) Limiter(key string) *rate.Limiter {
	if s == nil {
		return rate.NewLimiter(rate.Inf, 1)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[key] = l
	}
	return l
}

// Forget drops the limiter for key.
func (s *Store) Forget(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, key)
}

// Allow reports whether an event for key may happen now.
func (s *Store) Allow(key string) bool {
	return s.Limiter(key).Allow()
}
