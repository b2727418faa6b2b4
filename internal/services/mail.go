package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentinel-monitor/internal/config"
)

// Mailer sends an HTML message.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// SMTPMailer relays through an SMTP server.
type SMTPMailer struct {
	cfg    config.EmailConfig
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns nil when no relay host is configured.
func NewSMTPMailer(cfg config.EmailConfig, logger *zap.Logger) *SMTPMailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &SMTPMailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if m == nil {
		return errors.New("no SMTP relay configured")
	}
	msg := buildMessage(m.cfg.From, to, subject, htmlBody)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, to, msg)
	}()

	select {
	case err := <-done:
		// Some providers close the session early although the message
		// was accepted.
		if err != nil && strings.Contains(err.Error(), "short response") {
			m.logger.Debug("ignoring short response from SMTP server", zap.String("host", m.cfg.SMTPHost))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}

var emailTemplate = template.Must(template.New("alert").Parse(`<!doctype html>
<html>
<body style="font-family: -apple-system, Segoe UI, Helvetica, Arial, sans-serif; color: #1f2328;">
  <h2 style="margin-bottom: 4px;">{{.Title}}</h2>
  <p style="color: #656d76; margin-top: 0;">{{.Timestamp.Format "2006-01-02 15:04:05 MST"}}</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    {{- range .Fields}}
    <tr><td style="font-weight: 600;">{{.Title}}</td><td>{{.Value}}</td></tr>
    {{- end}}
  </table>
  {{- if .Error}}
  <p><strong>Error</strong></p>
  <pre style="background: #f6f8fa; padding: 8px;">{{.Error}}</pre>
  {{- end}}
  {{- if .Link}}
  <p><a href="{{.Link}}">Open dashboard</a></p>
  {{- end}}
</body>
</html>
`))

func renderEmail(ev Event) (string, error) {
	var b bytes.Buffer
	if err := emailTemplate.Execute(&b, ev); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return b.String(), nil
}
