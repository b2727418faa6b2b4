package services

import (
	"context"
	"fmt"

	"sentinel-monitor/internal/models"
)

// ScanSummary is what the scan-completion pathway needs from a report.
type ScanSummary struct {
	ID            string
	Target        string
	RiskScore     int
	CriticalCount int
	FindingCount  int
	Error         string
}

// ShouldNotifyScan reports whether cfg wants to hear about s. The min score
// is a ceiling: configs only fire when the risk score is at or below it.
func ShouldNotifyScan(cfg models.NotificationConfig, s ScanSummary) bool {
	if !cfg.Enabled {
		return false
	}
	triggered := cfg.NotifyOnCompletion || (cfg.NotifyOnCritical && s.CriticalCount > 0)
	return triggered && s.RiskScore <= cfg.MinScore
}

// NotifyScanCompleted fans a finished scan out to the configs whose
// triggers match.
func (d *Dispatcher) NotifyScanCompleted(ctx context.Context, s ScanSummary) Report {
	status := "completed"
	if s.Error != "" {
		status = "failed"
	}
	ev := Event{
		Type:   EventScanCompleted,
		Title:  fmt.Sprintf("Scan %s: %s", status, s.Target),
		ScanID: s.ID,
		Name:   s.Target,
		Target: s.Target,
		Status: status,
		Error:  s.Error,
		Fields: []Field{
			{"Target", s.Target},
			{"Risk score", fmt.Sprintf("%d", s.RiskScore)},
			{"Findings", fmt.Sprintf("%d", s.FindingCount)},
			{"Critical", fmt.Sprintf("%d", s.CriticalCount)},
		},
	}
	if d.dashboardURL != "" {
		ev.Link = fmt.Sprintf("%s/scans/%s", d.dashboardURL, s.ID)
	}
	return d.Dispatch(ctx, ev, func(cfg models.NotificationConfig) bool {
		return ShouldNotifyScan(cfg, s)
	})
}
