package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"sentinel-monitor/internal/models"
)

// Fallback field names when the markup has no recognisable inputs.
const (
	FallbackUsernameField = "username"
	FallbackPasswordField = "password"
)

// formQuirk patches a payload for server frameworks whose client script sets
// a request discriminator before submitting. The headless flow skips that
// script, so the value is set here.
type formQuirk struct {
	name          string
	hiddenMarkers []string
	pageMarkers   []string
	field         string
	value         string
}

var formQuirks = []formQuirk{
	{
		name:          "apex",
		hiddenMarkers: []string{"p_flow_id", "p_flow_step_id", "p_instance", "p_page_submission_id"},
		pageMarkers:   []string{"apex."},
		field:         "p_request",
		value:         "LOGIN",
	},
}

func (q formQuirk) matches(hidden []formInput, body string) bool {
	for _, in := range hidden {
		for _, m := range q.hiddenMarkers {
			if strings.EqualFold(in.Name, m) {
				return true
			}
		}
	}
	for _, m := range q.pageMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// LoginAutomator logs into an unknown web application using only generic
// HTML conventions.
type LoginAutomator struct {
	Timeout   time.Duration
	UserAgent string
	// Transport is used for both requests; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// NewLoginAutomator returns an automator with the given per-request timeout.
func NewLoginAutomator(timeout time.Duration, userAgent string) *LoginAutomator {
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &LoginAutomator{Timeout: timeout, UserAgent: userAgent}
}

// Attempt fetches the login page at pageURL, fills in the credentials and
// submits the form. The result is up when the server redirects after the
// POST, or answers 200 with a page that no longer asks for a password.
func (a *LoginAutomator) Attempt(ctx context.Context, pageURL, username, password string) HTTPResult {
	start := time.Now()
	res := HTTPResult{Status: models.StatusDown, CheckedAt: start}
	fail := func(code int, format string, args ...any) HTTPResult {
		res.StatusCode = code
		res.Error = fmt.Sprintf(format, args...)
		res.LatencyMS = elapsedMS(start)
		return res
	}

	fetched, err := a.fetch(ctx, pageURL)
	if err != nil {
		return fail(0, "login page request failed: %s", describeTransportError(err))
	}
	res.FinalURL = fetched.finalURL.String()
	if fetched.status >= http.StatusBadRequest {
		return fail(fetched.status, "login page returned HTTP %d", fetched.status)
	}

	target, form := buildSubmission(fetched.finalURL, fetched.body, username, password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(0, "invalid login form target %q: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.UserAgent)
	req.Header.Set("Referer", fetched.finalURL.String())
	if cookie := cookieHeader(fetched.setCookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	client := &http.Client{
		Timeout:   a.Timeout,
		Transport: a.transport(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return fail(0, "login submit failed: %s", describeTransportError(err))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		res.Status = models.StatusUp
		res.StatusCode = resp.StatusCode
		res.LatencyMS = elapsedMS(start)
		return res
	case http.StatusOK:
		if parsePage(body).hasPasswordInput() {
			return fail(resp.StatusCode, "login form still present after submit, credentials were likely rejected")
		}
		res.Status = models.StatusUp
		res.StatusCode = resp.StatusCode
		res.LatencyMS = elapsedMS(start)
		return res
	default:
		return fail(resp.StatusCode, "unexpected status %d after login submit", resp.StatusCode)
	}
}

type fetchedPage struct {
	finalURL   *url.URL
	status     int
	body       []byte
	setCookies []string
}

func (a *LoginAutomator) fetch(ctx context.Context, pageURL string) (*fetchedPage, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	rec := &cookieRecorder{next: a.transport()}
	client := &http.Client{Timeout: a.Timeout, Transport: rec, Jar: jar}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &fetchedPage{
		finalURL:   resp.Request.URL,
		status:     resp.StatusCode,
		body:       body,
		setCookies: rec.values(),
	}, nil
}

func (a *LoginAutomator) transport() http.RoundTripper {
	if a.Transport != nil {
		return a.Transport
	}
	return http.DefaultTransport
}

// buildSubmission resolves the form target and assembles the payload.
func buildSubmission(pageURL *url.URL, body []byte, username, password string) (string, url.Values) {
	doc := parsePage(body)
	base := EffectiveBase(pageURL, doc.BaseHref)
	form := doc.loginForm()

	target := base.String()
	if form.HasAction {
		if ref, err := url.Parse(form.Action); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}

	values := url.Values{}
	hidden := form.hidden()
	for _, in := range hidden {
		values.Add(in.Name, in.Value)
	}

	userField, ok := form.firstNamed("text", "email")
	if !ok {
		userField = FallbackUsernameField
	}
	passField, ok := form.firstNamed("password")
	if !ok {
		passField = FallbackPasswordField
	}
	values.Set(userField, username)
	values.Set(passField, password)

	text := string(body)
	for _, q := range formQuirks {
		if !q.matches(hidden, text) {
			continue
		}
		if cur, present := values[q.field]; present && strings.TrimSpace(strings.Join(cur, "")) == "" {
			values.Set(q.field, q.value)
		}
	}
	return target, values
}

// EffectiveBase returns the URL relative links in a document resolve
// against: the <base href> resolved against the page URL when declared,
// otherwise the page URL itself.
func EffectiveBase(pageURL *url.URL, baseHref string) *url.URL {
	if baseHref == "" {
		return pageURL
	}
	ref, err := url.Parse(baseHref)
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

// cookieRecorder collects Set-Cookie headers from every response, including
// intermediate redirects, in arrival order.
type cookieRecorder struct {
	next http.RoundTripper

	mu      sync.Mutex
	headers []string
}

func (c *cookieRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.next.RoundTrip(req)
	if err == nil {
		c.mu.Lock()
		c.headers = append(c.headers, resp.Header.Values("Set-Cookie")...)
		c.mu.Unlock()
	}
	return resp, err
}

func (c *cookieRecorder) values() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.headers...)
}
