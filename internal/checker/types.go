// Package checker holds the network probes run by the monitor schedulers.
// Probes never return errors: every failure is folded into the result.
package checker

import (
	"time"

	"sentinel-monitor/internal/models"
)

// Probe timeouts used when the caller passes zero.
const (
	DefaultTLSTimeout          = 10 * time.Second
	DefaultAvailabilityTimeout = 10 * time.Second
	DefaultLoginTimeout        = 15 * time.Second

	DefaultUserAgent = "SentinelMonitor/1.0 (+availability-check)"

	maxBodyBytes = 1 << 20
)

// HTTPResult is the outcome of an availability or login probe.
type HTTPResult struct {
	Status     models.CheckStatus `json:"status"`
	StatusCode int                `json:"status_code,omitempty"`
	LatencyMS  int64              `json:"latency_ms"`
	CheckedAt  time.Time          `json:"checked_at"`
	FinalURL   string             `json:"final_url,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Up reports whether the probe succeeded.
func (r HTTPResult) Up() bool {
	return r.Status == models.StatusUp
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
