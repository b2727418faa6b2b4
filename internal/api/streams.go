package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/progress"
	"sentinel-monitor/internal/scan"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 32
)

// BatchItem is the result of one monitor in a batch check.
type BatchItem struct {
	ID     uint               `json:"id"`
	Name   string             `json:"name"`
	Status models.CheckStatus `json:"status"`
	Error  string             `json:"error,omitempty"`
}

// CheckAllApps checks every enabled application monitor in the background
// and streams progress on the batch broker. Only one batch runs at a time.
func (h *Handler) CheckAllApps(c *gin.Context) {
	ids, err := h.Monitors.EnabledAppIDs(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	h.batchMu.Lock()
	if h.batchID != "" {
		running := h.batchID
		h.batchMu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a batch check is already running", "batch_id": running})
		return
	}
	id := uuid.NewString()
	h.batchID = id
	h.batchMu.Unlock()

	h.BatchBroker.Emit(id, progress.Event{Phase: "started", Total: len(ids)})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.batchMu.Lock()
			h.batchID = ""
			h.batchMu.Unlock()
		}()
		h.runBatch(id, ids)
	}()

	c.JSON(http.StatusAccepted, gin.H{"batch_id": id, "total": len(ids)})
}

func (h *Handler) runBatch(id string, ids []uint) {
	logger := h.Logger.With(zap.String("batch_id", id))
	items := make([]BatchItem, 0, len(ids))
	for i, monitorID := range ids {
		if h.ctx.Err() != nil {
			break
		}
		item := BatchItem{ID: monitorID}
		ctx, cancel := context.WithTimeout(h.ctx, checkTimeout)
		out, err := h.Apps.ExecuteCheck(ctx, monitorID)
		cancel()
		if out != nil {
			item.Name = out.Monitor.Name
			item.Status = out.Status
		}
		if err != nil {
			item.Error = err.Error()
			logger.Warn("batch check failed", zap.Uint("monitor_id", monitorID), zap.Error(err))
		}
		items = append(items, item)
		h.BatchBroker.Emit(id, progress.Event{
			Phase:   "checking",
			Step:    i + 1,
			Total:   len(ids),
			Message: item.Name,
		})
	}

	final := progress.Event{Phase: "completed", Step: len(items), Total: len(ids), Done: true, Result: items}
	if len(items) < len(ids) {
		final.Phase = "cancelled"
	}
	h.BatchBroker.Emit(id, final)
	logger.Info("batch check finished", zap.Int("checked", len(items)), zap.Int("total", len(ids)))
}

// GetBatch returns the latest progress of a batch
func (h *Handler) GetBatch(c *gin.Context) {
	lastEvent(c, h.BatchBroker)
}

// StreamBatch streams batch progress over a websocket
func (h *Handler) StreamBatch(c *gin.Context) {
	h.stream(c, h.BatchBroker)
}

type ScanRequest struct {
	Target string `json:"target" zog:"target"`
	Cookie string `json:"cookie" zog:"cookie"`
}

var scanRequestSchema = z.Struct(z.Shape{
	"Target": z.String().Trim().Required(),
	"Cookie": z.String().Max(8192),
})

// StartScan launches the external scan engine against a target
func (h *Handler) StartScan(c *gin.Context) {
	var req ScanRequest
	if issues := scanRequestSchema.Parse(zhttp.Request(c.Request), &req); issues != nil {
		invalidRequest(c, issues)
		return
	}
	u, err := url.Parse(req.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target must be an http(s) URL"})
		return
	}
	id, err := h.Scans.Start(scan.Request{Target: req.Target, Cookie: req.Cookie})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"scan_id": id})
}

// GetScan returns the latest progress of a scan
func (h *Handler) GetScan(c *gin.Context) {
	lastEvent(c, h.ScanBroker)
}

// StreamScan streams scan progress over a websocket
func (h *Handler) StreamScan(c *gin.Context) {
	h.stream(c, h.ScanBroker)
}

func lastEvent(c *gin.Context, b *progress.Broker) {
	ev, ok := b.Last(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown id"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if h.AllowedOrigin != "" && strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(h.AllowedOrigin, "/")) {
				return true
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// stream relays broker events for the id in the path until the final event
// has been written or the client goes away.
func (h *Handler) stream(c *gin.Context, b *progress.Broker) {
	id := c.Param("id")
	if _, ok := b.Last(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown id"})
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events := make(chan progress.Event, streamBuffer)
	unsubscribe := b.Subscribe(id, func(ev progress.Event) {
		for {
			select {
			case events <- ev:
				return
			default:
			}
			// Drop the oldest update rather than block the emitter.
			select {
			case <-events:
			default:
			}
		}
	})
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Done {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
					time.Now().Add(streamWriteTimeout))
				return
			}
		case <-gone:
			return
		case <-h.ctx.Done():
			return
		}
	}
}
