package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"gorm.io/gorm"

	"sentinel-monitor/internal/checker"
	"sentinel-monitor/internal/config"
	"sentinel-monitor/internal/models"
	"sentinel-monitor/internal/ratelimit"
)

// Event types carried in the "event" field of every payload.
const (
	EventAppDown       = "app.down"
	EventSSLAlert      = "ssl.alert"
	EventScanCompleted = "scan.completed"
	EventTest          = "test"
)

// DefaultChannelTimeout bounds one channel send.
const DefaultChannelTimeout = 10 * time.Second

// Field is one labelled value shown by chat and email channels.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Event is a channel-neutral alert.
type Event struct {
	ID        string
	Type      string
	Title     string
	MonitorID uint
	ScanID    string
	Name      string
	Target    string
	Status    string
	Error     string
	Fields    []Field
	Link      string
	// Recipient is the monitor's notify address; email channels skip
	// monitor events without one.
	Recipient string
	Timestamp time.Time
}

// Sender delivers an event through one channel kind.
type Sender interface {
	Send(ctx context.Context, cfg models.NotificationConfig, ev Event) error
}

// Report summarises one fan-out.
type Report struct {
	Attempted int
	Succeeded int
	Err       error
}

// Dispatcher fans events out to every enabled notification config.
type Dispatcher struct {
	db           *gorm.DB
	senders      map[models.ChannelKind]Sender
	pacing       *ratelimit.Store
	timeout      time.Duration
	dashboardURL string
	logger       *zap.Logger
	now          func() time.Time
}

// NewDispatcher builds a dispatcher with webhook, chat and email senders.
// mailer may be nil, in which case email configs fail with an error.
func NewDispatcher(db *gorm.DB, cfg config.NotificationsConfig, mailer Mailer, logger *zap.Logger) (*Dispatcher, error) {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	client, err := newHTTPClient(cfg.SOCKS5Proxy, timeout)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		db: db,
		senders: map[models.ChannelKind]Sender{
			models.ChannelWebhook: &WebhookSender{Client: client},
			models.ChannelSlack:   &SlackSender{Client: client},
			models.ChannelEmail:   &EmailSender{Mailer: mailer},
		},
		pacing:       ratelimit.NewStore(cfg.RatePerSec, cfg.Burst),
		timeout:      timeout,
		dashboardURL: strings.TrimRight(cfg.DashboardURL, "/"),
		logger:       logger,
		now:          time.Now,
	}
	return d, nil
}

// SetSender replaces the sender for kind.
func (d *Dispatcher) SetSender(kind models.ChannelKind, s Sender) {
	d.senders[kind] = s
}

// newHTTPClient returns the client shared by the HTTP channels, dialing
// through a SOCKS5 proxy when one is configured.
func newHTTPClient(socks5Addr string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if socks5Addr == "" {
		return client, nil
	}
	addr := strings.TrimPrefix(socks5Addr, "socks5://")
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, address string) (net.Conn, error) {
			return dialer.Dial(network, address)
		}
	}
	client.Transport = transport
	return client, nil
}

// NotifyCertificate alerts on a certificate entering warning or error.
func (d *Dispatcher) NotifyCertificate(ctx context.Context, m models.CertificateMonitor, r checker.CertificateResult, status models.CheckStatus) error {
	title := fmt.Sprintf("SSL certificate %s: %s", status, m.Domain)
	fields := []Field{
		{"Domain", fmt.Sprintf("%s:%d", m.Domain, m.Port)},
		{"Status", string(status)},
		{"Alert threshold", fmt.Sprintf("%d days", m.AlertThresholdDays)},
	}
	if r.DaysRemaining != nil {
		fields = append(fields, Field{"Days remaining", fmt.Sprintf("%d", *r.DaysRemaining)})
	}
	if r.ValidTo != nil {
		fields = append(fields, Field{"Expires", r.ValidTo.UTC().Format("2006-01-02 15:04 MST")})
	}
	if r.Issuer != nil && r.Issuer.CommonName != "" {
		fields = append(fields, Field{"Issuer", r.Issuer.CommonName})
	}

	rep := d.Dispatch(ctx, Event{
		Type:      EventSSLAlert,
		Title:     title,
		MonitorID: m.ID,
		Name:      m.Domain,
		Target:    fmt.Sprintf("%s:%d", m.Domain, m.Port),
		Status:    string(status),
		Error:     r.Error,
		Fields:    fields,
		Link:      d.link("certificates", m.ID),
		Recipient: m.NotifyEmail,
	}, nil)
	return rep.Err
}

// NotifyApplication alerts on an application going down.
func (d *Dispatcher) NotifyApplication(ctx context.Context, m models.AppMonitor, availability, login checker.HTTPResult) error {
	errText := availability.Error
	if errText == "" {
		errText = login.Error
	}
	fields := []Field{
		{"Application", m.Name},
		{"URL", m.URL},
		{"Availability", string(availability.Status)},
		{"Login", string(login.Status)},
		{"Response time", fmt.Sprintf("%d ms", availability.LatencyMS)},
	}
	if availability.StatusCode != 0 {
		fields = append(fields, Field{"HTTP status", fmt.Sprintf("%d", availability.StatusCode)})
	}

	rep := d.Dispatch(ctx, Event{
		Type:      EventAppDown,
		Title:     fmt.Sprintf("Application down: %s", m.Name),
		MonitorID: m.ID,
		Name:      m.Name,
		Target:    m.URL,
		Status:    string(models.StatusDown),
		Error:     errText,
		Fields:    fields,
		Link:      d.link("applications", m.ID),
		Recipient: m.NotifyEmail,
	}, nil)
	return rep.Err
}

func (d *Dispatcher) link(section string, id uint) string {
	if d.dashboardURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%d", d.dashboardURL, section, id)
}

// Dispatch sends ev to every enabled config accepted by filter (nil accepts
// all). Sends run concurrently, each with its own timeout; one failing
// channel does not affect the others. It waits for every send.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, filter func(models.NotificationConfig) bool) Report {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now().UTC()
	}

	var configs []models.NotificationConfig
	if err := d.db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&configs).Error; err != nil {
		d.logger.Error("failed to load notification configs", zap.Error(err))
		return Report{Err: fmt.Errorf("failed to load notification configs: %w", err)}
	}

	var targets []models.NotificationConfig
	for _, cfg := range configs {
		if filter != nil && !filter(cfg) {
			continue
		}
		if cfg.Kind == models.ChannelEmail && ev.Recipient == "" && ev.Type != EventScanCompleted {
			continue
		}
		targets = append(targets, cfg)
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, cfg := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.send(ctx, cfg, ev)
		}()
	}
	wg.Wait()

	rep := Report{Attempted: len(targets)}
	for _, err := range errs {
		if err == nil {
			rep.Succeeded++
		}
		rep.Err = multierr.Append(rep.Err, err)
	}
	d.logger.Info("notification dispatched",
		zap.String("event", ev.Type),
		zap.String("event_id", ev.ID),
		zap.Int("attempted", rep.Attempted),
		zap.Int("succeeded", rep.Succeeded),
	)
	return rep
}

func (d *Dispatcher) send(ctx context.Context, cfg models.NotificationConfig, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s sender panicked: %v", cfg.Kind, r)
		}
		d.record(cfg, ev, err)
	}()

	sender, ok := d.senders[cfg.Kind]
	if !ok || sender == nil {
		return fmt.Errorf("config %d: unsupported channel kind %q", cfg.ID, cfg.Kind)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.pacing.Limiter(fmt.Sprintf("config/%d", cfg.ID)).Wait(ctx); err != nil {
		return fmt.Errorf("config %d: rate limited: %w", cfg.ID, err)
	}
	if err := sender.Send(ctx, cfg, ev); err != nil {
		return fmt.Errorf("config %d (%s): %w", cfg.ID, cfg.Name, err)
	}
	return nil
}

// record stores the attempt; failures here are only logged.
func (d *Dispatcher) record(cfg models.NotificationConfig, ev Event, sendErr error) {
	entry := models.NotificationLog{
		ConfigID: cfg.ID,
		Channel:  cfg.Kind,
		Event:    ev.Type,
		Subject:  ev.Title,
		Status:   "success",
		SentAt:   d.now(),
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
		d.logger.Warn("notification failed",
			zap.Uint("config_id", cfg.ID),
			zap.String("channel", string(cfg.Kind)),
			zap.String("event", ev.Type),
			zap.Error(sendErr),
		)
	}
	if err := d.db.Create(&entry).Error; err != nil {
		d.logger.Warn("failed to record notification", zap.Uint("config_id", cfg.ID), zap.Error(err))
	}
}

// SendTest sends a sample event through one config, enabled or not, and
// returns the channel error.
func (d *Dispatcher) SendTest(ctx context.Context, cfg models.NotificationConfig) error {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventTest,
		Title:     "Test notification from sentinel-monitor",
		Name:      cfg.Name,
		Target:    cfg.Destination,
		Status:    "test",
		Fields:    []Field{{"Channel", string(cfg.Kind)}, {"Config", cfg.Name}},
		Recipient: cfg.Destination,
		Timestamp: d.now().UTC(),
	}
	if d.dashboardURL != "" {
		ev.Link = d.dashboardURL
	}
	return d.send(ctx, cfg, ev)
}
