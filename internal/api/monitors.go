package api

import (
	"context"
	"net/http"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/services"
)

var (
	certIntervals = []string{string(models.CertDaily), string(models.CertWeekly), string(models.CertMonthly)}
	appIntervals  = []string{
		string(models.App5Min), string(models.App15Min), string(models.App30Min),
		string(models.App1Hour), string(models.App6Hour), string(models.App1Day),
	}
)

type CertificateRequest struct {
	Domain             string  `json:"domain" zog:"domain"`
	Port               int     `json:"port" zog:"port"`
	Interval           string  `json:"interval" zog:"interval"`
	Enabled            *bool   `json:"enabled" zog:"enabled"`
	AlertThresholdDays *int    `json:"alert_threshold_days" zog:"alert_threshold_days"`
	NotifyEmail        *string `json:"notify_email" zog:"notify_email"`
}

func certificateShape(create bool) z.Shape {
	domain := z.String().Trim().Max(253)
	if create {
		domain = domain.Required()
	}
	return z.Shape{
		"Domain":             domain,
		"Port":               z.Int().GTE(0).LTE(65535),
		"Interval":           z.String().OneOf(append([]string{""}, certIntervals...)),
		"Enabled":            z.Ptr(z.Bool()),
		"AlertThresholdDays": z.Ptr(z.Int().GTE(0).LTE(365)),
		"NotifyEmail":        z.Ptr(z.String().Trim()),
	}
}

var (
	createCertificateSchema = z.Struct(certificateShape(true))
	updateCertificateSchema = z.Struct(certificateShape(false))
)

func (r CertificateRequest) input() services.CertificateInput {
	return services.CertificateInput{
		Domain:             r.Domain,
		Port:               r.Port,
		Interval:           models.CertInterval(r.Interval),
		Enabled:            r.Enabled,
		AlertThresholdDays: r.AlertThresholdDays,
		NotifyEmail:        r.NotifyEmail,
	}
}

type AppRequest struct {
	Name        string  `json:"name" zog:"name"`
	URL         string  `json:"url" zog:"url"`
	Username    *string `json:"username" zog:"username"`
	Password    *string `json:"password" zog:"password"`
	Interval    string  `json:"interval" zog:"interval"`
	Enabled     *bool   `json:"enabled" zog:"enabled"`
	NotifyEmail *string `json:"notify_email" zog:"notify_email"`
}

func appShape(create bool) z.Shape {
	name := z.String().Trim().Max(200)
	url := z.String().Trim()
	if create {
		name = name.Required()
		url = url.Required()
	}
	return z.Shape{
		"Name":        name,
		"URL":         url,
		"Username":    z.Ptr(z.String()),
		"Password":    z.Ptr(z.String()),
		"Interval":    z.String().OneOf(append([]string{""}, appIntervals...)),
		"Enabled":     z.Ptr(z.Bool()),
		"NotifyEmail": z.Ptr(z.String().Trim()),
	}
}

var (
	createAppSchema = z.Struct(appShape(true))
	updateAppSchema = z.Struct(appShape(false))
)

func (r AppRequest) input() services.AppInput {
	return services.AppInput{
		Name:        r.Name,
		URL:         r.URL,
		Username:    r.Username,
		Password:    r.Password,
		Interval:    models.AppInterval(r.Interval),
		Enabled:     r.Enabled,
		NotifyEmail: r.NotifyEmail,
	}
}

// ListCertificates retrieves all certificate monitors
func (h *Handler) ListCertificates(c *gin.Context) {
	views, err := h.Monitors.ListCertificates(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateCertificate adds a certificate monitor
func (h *Handler) CreateCertificate(c *gin.Context) {
	var req CertificateRequest
	if issues := createCertificateSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	m, err := h.Monitors.CreateCertificate(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GetCertificate retrieves a single certificate monitor
func (h *Handler) GetCertificate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := h.Monitors.GetCertificate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateCertificate edits a certificate monitor
func (h *Handler) UpdateCertificate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CertificateRequest
	if issues := updateCertificateSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	m, err := h.Monitors.UpdateCertificate(c.Request.Context(), id, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteCertificate removes a certificate monitor
func (h *Handler) DeleteCertificate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Monitors.DeleteCertificate(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.CheckLimits.Forget(checkKey(models.KindCertificate, id))
	c.Status(http.StatusNoContent)
}

// CheckCertificate runs a certificate check now
func (h *Handler) CheckCertificate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !h.CheckLimits.Allow(checkKey(models.KindCertificate, id)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many checks, try again later"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	out, err := h.Certificates.ExecuteCheck(ctx, id)
	if out == nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"outcome": out}
	if err != nil {
		h.Logger.Warn("check result not fully stored", zap.Uint("monitor_id", id), zap.Error(err))
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// CertificateHistory lists recent certificate checks
func (h *Handler) CertificateHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.Monitors.GetCertificate(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.Recorder.List(c.Request.Context(), history.CertificateRef(id), models.CheckCertificate, queryLimit(c, 50, 500))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ListApps retrieves all application monitors
func (h *Handler) ListApps(c *gin.Context) {
	views, err := h.Monitors.ListApps(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateApp adds an application monitor
func (h *Handler) CreateApp(c *gin.Context) {
	var req AppRequest
	if issues := createAppSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	m, err := h.Monitors.CreateApp(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GetApp retrieves a single application monitor
func (h *Handler) GetApp(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := h.Monitors.GetApp(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateApp edits an application monitor
func (h *Handler) UpdateApp(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AppRequest
	if issues := updateAppSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	m, err := h.Monitors.UpdateApp(c.Request.Context(), id, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteApp removes an application monitor
func (h *Handler) DeleteApp(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Monitors.DeleteApp(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.CheckLimits.Forget(checkKey(models.KindApplication, id))
	c.Status(http.StatusNoContent)
}

// CheckApp runs an application check now
func (h *Handler) CheckApp(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !h.CheckLimits.Allow(checkKey(models.KindApplication, id)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many checks, try again later"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	out, err := h.Apps.ExecuteCheck(ctx, id)
	if out == nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"outcome": out}
	if err != nil {
		h.Logger.Warn("check result not fully stored", zap.Uint("monitor_id", id), zap.Error(err))
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// AppHistory lists recent application checks, optionally of one type
func (h *Handler) AppHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	checkType := models.CheckType(c.Query("type"))
	if checkType != "" && checkType != models.CheckAvailability && checkType != models.CheckLogin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be availability or login"})
		return
	}
	if _, err := h.Monitors.GetApp(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.Recorder.List(c.Request.Context(), history.AppRef(id), checkType, queryLimit(c, 50, 500))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func checkKey(kind models.MonitorKind, id uint) string {
	return history.MonitorRef{Kind: kind, ID: id}.String()
}
