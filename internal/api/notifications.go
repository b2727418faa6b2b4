package api

import (
	"net/http"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
	"github.com/gin-gonic/gin"

	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/services"
)

// NotificationConfigRequest creates or edits a notification config. The
// secret is write-only.
type NotificationConfigRequest struct {
	Name               string  `json:"name" zog:"name"`
	Kind               string  `json:"kind" zog:"kind"`
	Destination        string  `json:"destination" zog:"destination"`
	Secret             *string `json:"secret" zog:"secret"`
	Enabled            *bool   `json:"enabled" zog:"enabled"`
	NotifyOnCompletion *bool   `json:"notify_on_completion" zog:"notify_on_completion"`
	NotifyOnCritical   *bool   `json:"notify_on_critical" zog:"notify_on_critical"`
	MinScore           *int    `json:"min_score" zog:"min_score"`
}

var channelKinds = []string{string(models.ChannelWebhook), string(models.ChannelSlack), string(models.ChannelEmail)}

func notificationConfigShape(create bool) z.Shape {
	name := z.String().Trim().Max(100)
	kind := z.String().OneOf(channelKinds)
	if create {
		name = name.Required()
		kind = kind.Required()
	} else {
		kind = z.String().OneOf(append([]string{""}, channelKinds...))
	}
	return z.Shape{
		"Name":               name,
		"Kind":               kind,
		"Destination":        z.String().Trim().Max(2048),
		"Secret":             z.Ptr(z.String()),
		"Enabled":            z.Ptr(z.Bool()),
		"NotifyOnCompletion": z.Ptr(z.Bool()),
		"NotifyOnCritical":   z.Ptr(z.Bool()),
		"MinScore":           z.Ptr(z.Int().GTE(0).LTE(100)),
	}
}

var (
	createNotificationConfigSchema = z.Struct(notificationConfigShape(true))
	updateNotificationConfigSchema = z.Struct(notificationConfigShape(false))
)

func (r NotificationConfigRequest) input() services.NotificationConfigInput {
	return services.NotificationConfigInput{
		Name:               r.Name,
		Kind:               models.ChannelKind(r.Kind),
		Destination:        r.Destination,
		Secret:             r.Secret,
		Enabled:            r.Enabled,
		NotifyOnCompletion: r.NotifyOnCompletion,
		NotifyOnCritical:   r.NotifyOnCritical,
		MinScore:           r.MinScore,
	}
}

// ListNotificationConfigs retrieves all notification configs
func (h *Handler) ListNotificationConfigs(c *gin.Context) {
	configs, err := h.Configs.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// CreateNotificationConfig adds a notification config
func (h *Handler) CreateNotificationConfig(c *gin.Context) {
	var req NotificationConfigRequest
	if issues := createNotificationConfigSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	cfg, err := h.Configs.Create(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// GetNotificationConfig retrieves a single notification config
func (h *Handler) GetNotificationConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cfg, err := h.Configs.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateNotificationConfig edits a notification config
func (h *Handler) UpdateNotificationConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req NotificationConfigRequest
	if issues := updateNotificationConfigSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	cfg, err := h.Configs.Update(c.Request.Context(), id, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DeleteNotificationConfig removes a notification config
func (h *Handler) DeleteNotificationConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Configs.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestNotificationConfig sends a sample notification through one config
func (h *Handler) TestNotificationConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cfg, err := h.Configs.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Tester.SendTest(c.Request.Context(), *cfg); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test notification sent"})
}

// NotificationLogs lists recent send attempts of a config
func (h *Handler) NotificationLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Configs.Logs(c.Request.Context(), id, queryLimit(c, 50, 500))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
