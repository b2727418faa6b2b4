package scheduler

//go:generate mockgen -source=notifier.go -destination=mocks/notifier.go -package=mocks

import (
	"context"

	"sentinel-monitor/internal/checker"
	"sentinel-monitor/internal/models"
)

// Notifier fans a failing transition out to the configured channels.
type Notifier interface {
	NotifyCertificate(ctx context.Context, monitor models.CertificateMonitor, result checker.CertificateResult, status models.CheckStatus) error
	NotifyApplication(ctx context.Context, monitor models.AppMonitor, availability, login checker.HTTPResult) error
}

// Revealer turns a stored credential into plaintext.
type Revealer interface {
	Reveal(stored string) string
}

// CertificateInspector, AvailabilityProber and LoginAutomator are the probes
// the schedulers drive; the checker package provides the implementations.
type CertificateInspector interface {
	Inspect(ctx context.Context, domain string, port int) checker.CertificateResult
}

type AvailabilityProber interface {
	Probe(ctx context.Context, target string) checker.HTTPResult
}

type LoginAutomator interface {
	Attempt(ctx context.Context, pageURL, username, password string) checker.HTTPResult
}
