package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sentinel-monitor/internal/database"
	"sentinel-monitor/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString(), zap.NewNop())
	require.NoError(t, err)
	return db
}

func createApp(t *testing.T, db *gorm.DB) *models.AppMonitor {
	t.Helper()
	m := &models.AppMonitor{Name: "crm", URL: "https://crm.example.com/login", Interval: models.App15Min, Enabled: true}
	require.NoError(t, db.Create(m).Error)
	return m
}

func TestComputeUptime(t *testing.T) {
	up, down := models.StatusUp, models.StatusDown
	cases := []struct {
		name     string
		statuses []models.CheckStatus
		want     int
	}{
		{"no data", nil, InsufficientData},
		{"all up", []models.CheckStatus{up, up, up}, 100},
		{"all down", []models.CheckStatus{down, down}, 0},
		{"two of three", []models.CheckStatus{up, up, down}, 67},
		{"one of three", []models.CheckStatus{up, down, down}, 33},
		{"half", []models.CheckStatus{up, down, up, down, up, down, up, down}, 50},
		{"one of eight rounds half up", []models.CheckStatus{up, down, down, down, down, down, down, down}, 13},
		{"certificate ok counts", []models.CheckStatus{models.StatusOK, models.StatusWarning}, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeUptime(tc.statuses))
		})
	}
}

func TestAppend_SetsForeignKeyAndOrder(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db)
	m := createApp(t, db)
	now := time.Now()

	entries := []models.CheckHistory{
		{CheckType: models.CheckAvailability, Status: models.StatusUp, LatencyMS: 42, CheckedAt: now},
		{CheckType: models.CheckLogin, Status: models.StatusDown, Error: "login form still present", CheckedAt: now.Add(time.Millisecond)},
	}
	require.NoError(t, rec.Append(context.Background(), AppRef(m.ID), entries...))
	assert.NotZero(t, entries[0].ID)
	assert.Greater(t, entries[1].ID, entries[0].ID)

	got, err := rec.List(context.Background(), AppRef(m.ID), "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.CheckLogin, got[0].CheckType)
	require.NotNil(t, got[0].AppMonitorID)
	assert.Equal(t, m.ID, *got[0].AppMonitorID)
	assert.Nil(t, got[0].CertificateMonitorID)

	onlyLogin, err := rec.List(context.Background(), AppRef(m.ID), models.CheckLogin, 10)
	require.NoError(t, err)
	assert.Len(t, onlyLogin, 1)
}

func TestAppend_MonitorGone(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db)
	m := createApp(t, db)
	require.NoError(t, db.Delete(&models.AppMonitor{}, m.ID).Error)

	err := rec.Append(context.Background(), AppRef(m.ID), models.CheckHistory{CheckType: models.CheckAvailability, Status: models.StatusUp})
	assert.ErrorIs(t, err, ErrMonitorGone)

	var count int64
	require.NoError(t, db.Model(&models.CheckHistory{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAppend_CertificateRef(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db)
	m := models.CertificateMonitor{Domain: "example.com", Port: 443, Interval: models.CertDaily, Enabled: true, AlertThresholdDays: 14}
	require.NoError(t, db.Create(&m).Error)

	days := 30
	require.NoError(t, rec.Append(context.Background(), CertificateRef(m.ID), models.CheckHistory{
		CheckType: models.CheckCertificate, Status: models.StatusOK, DaysRemaining: &days,
	}))

	got, err := rec.List(context.Background(), CertificateRef(m.ID), models.CheckCertificate, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 30, *got[0].DaysRemaining)
	assert.False(t, got[0].CheckedAt.IsZero())

	apps, err := rec.List(context.Background(), AppRef(m.ID), "", 0)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestUptime24h(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db)
	m := createApp(t, db)
	ref := AppRef(m.ID)
	ctx := context.Background()

	pct, err := rec.Uptime24h(ctx, ref, models.CheckAvailability)
	require.NoError(t, err)
	assert.Equal(t, InsufficientData, pct)

	now := time.Now()
	require.NoError(t, rec.Append(ctx, ref,
		models.CheckHistory{CheckType: models.CheckAvailability, Status: models.StatusDown, CheckedAt: now.Add(-48 * time.Hour)},
		models.CheckHistory{CheckType: models.CheckAvailability, Status: models.StatusUp, CheckedAt: now.Add(-3 * time.Hour)},
		models.CheckHistory{CheckType: models.CheckAvailability, Status: models.StatusUp, CheckedAt: now.Add(-2 * time.Hour)},
		models.CheckHistory{CheckType: models.CheckAvailability, Status: models.StatusDown, CheckedAt: now.Add(-time.Hour)},
		models.CheckHistory{CheckType: models.CheckLogin, Status: models.StatusDown, CheckedAt: now.Add(-time.Hour)},
	))

	pct, err = rec.Uptime24h(ctx, ref, models.CheckAvailability)
	require.NoError(t, err)
	assert.Equal(t, 67, pct)

	pct, err = rec.Uptime24h(ctx, ref, models.CheckLogin)
	require.NoError(t, err)
	assert.Equal(t, 0, pct)
}

func TestAppend_UnknownKind(t *testing.T) {
	rec := NewRecorder(newTestDB(t))
	err := rec.Append(context.Background(), MonitorRef{Kind: "dns", ID: 1}, models.CheckHistory{})
	assert.Error(t, err)
}
