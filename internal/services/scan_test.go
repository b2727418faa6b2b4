package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-monitor/internal/models"
)

func TestShouldNotifyScan(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.NotificationConfig
		scan ScanSummary
		want bool
	}{
		{
			name: "disabled",
			cfg:  models.NotificationConfig{NotifyOnCompletion: true, MinScore: 100},
			scan: ScanSummary{RiskScore: 10},
			want: false,
		},
		{
			name: "completion",
			cfg:  models.NotificationConfig{Enabled: true, NotifyOnCompletion: true, MinScore: 100},
			scan: ScanSummary{RiskScore: 90},
			want: true,
		},
		{
			name: "score above ceiling",
			cfg:  models.NotificationConfig{Enabled: true, NotifyOnCompletion: true, MinScore: 50},
			scan: ScanSummary{RiskScore: 51},
			want: false,
		},
		{
			name: "score at ceiling",
			cfg:  models.NotificationConfig{Enabled: true, NotifyOnCompletion: true, MinScore: 50},
			scan: ScanSummary{RiskScore: 50},
			want: true,
		},
		{
			name: "critical only without criticals",
			cfg:  models.NotificationConfig{Enabled: true, NotifyOnCritical: true, MinScore: 100},
			scan: ScanSummary{RiskScore: 20},
			want: false,
		},
		{
			name: "critical only with criticals",
			cfg:  models.NotificationConfig{Enabled: true, NotifyOnCritical: true, MinScore: 100},
			scan: ScanSummary{RiskScore: 20, CriticalCount: 2},
			want: true,
		},
		{
			name: "no trigger",
			cfg:  models.NotificationConfig{Enabled: true, MinScore: 100},
			scan: ScanSummary{CriticalCount: 3},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotifyScan(tt.cfg, tt.scan))
		})
	}
}

func TestNotifyScanCompleted_RoutesByTrigger(t *testing.T) {
	db := newTestDB(t)
	srv, got := captureServer(t, http.StatusOK)
	addConfig(t, db, models.NotificationConfig{Name: "all", Kind: models.ChannelWebhook, Destination: srv.URL, Enabled: true, NotifyOnCompletion: true, MinScore: 100})
	addConfig(t, db, models.NotificationConfig{Name: "critical", Kind: models.ChannelWebhook, Destination: srv.URL, Enabled: true, NotifyOnCritical: true, MinScore: 100})
	mailer := &fakeMailer{}
	addConfig(t, db, models.NotificationConfig{Name: "mail", Kind: models.ChannelEmail, Destination: "sec@example.com", Enabled: true, NotifyOnCompletion: true, MinScore: 100})

	d := newTestDispatcher(t, db, mailer)
	rep := d.NotifyScanCompleted(context.Background(), ScanSummary{ID: "abc", Target: "https://shop.example", RiskScore: 72, FindingCount: 4})

	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, 2, rep.Succeeded)
	require.NoError(t, rep.Err)

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal((<-got).body, &payload))
	assert.Equal(t, EventScanCompleted, payload.Event)
	assert.Equal(t, "abc", payload.ScanID)
	assert.Equal(t, "completed", payload.Status)
	assert.Equal(t, "72", payload.Details["Risk score"])
	assert.Equal(t, "https://sentinel.example/scans/abc", payload.Link)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"sec@example.com"}, mailer.sent[0].to)
}
