package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sentinel-monitor/internal/models"
)

// Signature headers set on webhook requests when the config has a secret.
const (
	HeaderTimestamp = "X-Sentinel-Timestamp"
	HeaderSignature = "X-Sentinel-Signature"
)

// WebhookPayload is the JSON body posted to generic webhooks.
type WebhookPayload struct {
	Event     string            `json:"event"`
	ID        string            `json:"id"`
	MonitorID uint              `json:"monitor_id,omitempty"`
	ScanID    string            `json:"scan_id,omitempty"`
	Name      string            `json:"name"`
	Target    string            `json:"target"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Link      string            `json:"link,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// WebhookSender posts a WebhookPayload.
type WebhookSender struct {
	Client *http.Client
}

func (s *WebhookSender) Send(ctx context.Context, cfg models.NotificationConfig, ev Event) error {
	payload := WebhookPayload{
		Event:     ev.Type,
		ID:        ev.ID,
		MonitorID: ev.MonitorID,
		ScanID:    ev.ScanID,
		Name:      ev.Name,
		Target:    ev.Target,
		Status:    ev.Status,
		Error:     ev.Error,
		Link:      ev.Link,
		Timestamp: ev.Timestamp,
	}
	if len(ev.Fields) > 0 {
		payload.Details = make(map[string]string, len(ev.Fields))
		for _, f := range ev.Fields {
			payload.Details[f.Title] = f.Value
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if cfg.Secret != "" {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		headers.Set(HeaderTimestamp, ts)
		headers.Set(HeaderSignature, "sha256="+Sign(cfg.Secret, ts, body))
	}
	return postJSON(ctx, s.Client, cfg.Destination, body, headers)
}

// Sign returns hex(HMAC-SHA256(secret, timestamp + "\n" + body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SlackSender posts a Block Kit message to an incoming-webhook URL.
type SlackSender struct {
	Client *http.Client
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
	URL  string    `json:"url,omitempty"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackMaxFields is the per-section field limit of Block Kit.
const slackMaxFields = 10

func (s *SlackSender) Send(ctx context.Context, cfg models.NotificationConfig, ev Event) error {
	body, err := json.Marshal(buildSlackMessage(ev))
	if err != nil {
		return err
	}
	return postJSON(ctx, s.Client, cfg.Destination, body, nil)
}

func buildSlackMessage(ev Event) slackMessage {
	msg := slackMessage{
		Text: ev.Title,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: ev.Title}},
		},
	}

	fields := make([]slackText, 0, len(ev.Fields))
	for _, f := range ev.Fields {
		if len(fields) == slackMaxFields {
			break
		}
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", f.Title, f.Value)})
	}
	if len(fields) > 0 {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Fields: fields})
	}

	if ev.Error != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Error*\n```" + ev.Error + "```"},
		})
	}

	if ev.Link != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{{
				Type: "button",
				Text: slackText{Type: "plain_text", Text: "Open dashboard"},
				URL:  ev.Link,
			}},
		})
	}
	return msg
}

// EmailSender renders an HTML body and hands it to a Mailer. Monitor events
// go to the monitor's notify address, scan events to the config destination.
type EmailSender struct {
	Mailer Mailer
}

func (s *EmailSender) Send(ctx context.Context, cfg models.NotificationConfig, ev Event) error {
	if s.Mailer == nil {
		return errors.New("no SMTP relay configured")
	}
	to := ev.Recipient
	if to == "" {
		to = cfg.Destination
	}
	if to == "" {
		return errors.New("no recipient")
	}
	html, err := renderEmail(ev)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, []string{to}, ev.Title, html)
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("destination returned status %d", resp.StatusCode)
	}
	return nil
}
