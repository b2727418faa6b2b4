package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/progress"
	"sentinel-monitor/internal/ratelimit"
	"sentinel-monitor/internal/scan"
	"sentinel-monitor/internal/scheduler"
	"sentinel-monitor/internal/services"
)

// checkTimeout bounds a check-now request.
const checkTimeout = 2 * time.Minute

// CertificateChecker runs an immediate certificate check.
type CertificateChecker interface {
	ExecuteCheck(ctx context.Context, id uint) (*scheduler.CertificateOutcome, error)
}

// AppChecker runs an immediate application check.
type AppChecker interface {
	ExecuteCheck(ctx context.Context, id uint) (*scheduler.AppOutcome, error)
}

// ScanStarter launches background scans.
type ScanStarter interface {
	Start(req scan.Request) (string, error)
}

// TestSender delivers a sample notification through one config.
type TestSender interface {
	SendTest(ctx context.Context, cfg models.NotificationConfig) error
}

// Deps are the collaborators of the API.
type Deps struct {
	Monitors      *services.MonitorService
	Configs       *services.NotificationConfigService
	Tester        TestSender
	Certificates  CertificateChecker
	Apps          AppChecker
	Recorder      *history.Recorder
	Scans         ScanStarter
	ScanBroker    *progress.Broker
	BatchBroker   *progress.Broker
	CheckLimits   *ratelimit.Store
	Logger        *zap.Logger
	AllowedOrigin string
}

// Handler holds service dependencies
type Handler struct {
	Deps

	batchMu sync.Mutex
	batchID string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHandler creates a new API handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{Deps: deps, ctx: ctx, cancel: cancel}
}

// Close cancels running batch checks and waits for them.
func (h *Handler) Close(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		// Certificate monitors
		api.GET("/certificates", h.ListCertificates)
		api.POST("/certificates", h.CreateCertificate)
		api.GET("/certificates/:id", h.GetCertificate)
		api.PUT("/certificates/:id", h.UpdateCertificate)
		api.DELETE("/certificates/:id", h.DeleteCertificate)
		api.POST("/certificates/:id/check", h.CheckCertificate)
		api.GET("/certificates/:id/history", h.CertificateHistory)

		// Application monitors
		api.GET("/applications", h.ListApps)
		api.POST("/applications", h.CreateApp)
		api.POST("/applications/check-all", h.CheckAllApps)
		api.GET("/applications/:id", h.GetApp)
		api.PUT("/applications/:id", h.UpdateApp)
		api.DELETE("/applications/:id", h.DeleteApp)
		api.POST("/applications/:id/check", h.CheckApp)
		api.GET("/applications/:id/history", h.AppHistory)

		// Progress
		api.GET("/batches/:id", h.GetBatch)
		api.GET("/batches/:id/stream", h.StreamBatch)
		api.POST("/scans", h.StartScan)
		api.GET("/scans/:id", h.GetScan)
		api.GET("/scans/:id/stream", h.StreamScan)

		// Notification configs
		api.GET("/notifications", h.ListNotificationConfigs)
		api.POST("/notifications", h.CreateNotificationConfig)
		api.GET("/notifications/:id", h.GetNotificationConfig)
		api.PUT("/notifications/:id", h.UpdateNotificationConfig)
		api.DELETE("/notifications/:id", h.DeleteNotificationConfig)
		api.POST("/notifications/:id/test", h.TestNotificationConfig)
		api.GET("/notifications/:id/logs", h.NotificationLogs)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func queryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, scheduler.ErrNotFound), errors.Is(err, history.ErrMonitorGone):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict), errors.Is(err, scheduler.ErrDisabled), errors.Is(err, scheduler.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, scan.ErrTooManyScans):
		status = http.StatusTooManyRequests
	case errors.Is(err, scan.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func invalidRequest(c *gin.Context, issues any) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "issues": issues})
}
