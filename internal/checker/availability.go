package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentinel-monitor/internal/models"
)

const maxRedirects = 10

// AvailabilityProber classifies a URL as reachable or not. Any completed HTTP
// response counts as up, whatever its status code.
type AvailabilityProber struct {
	Client    *http.Client
	UserAgent string
}

// NewAvailabilityProber returns a prober with the given request timeout.
func NewAvailabilityProber(timeout time.Duration, userAgent string) *AvailabilityProber {
	if timeout <= 0 {
		timeout = DefaultAvailabilityTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &AvailabilityProber{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		UserAgent: userAgent,
	}
}

// Probe issues a GET to target.
func (p *AvailabilityProber) Probe(ctx context.Context, target string) HTTPResult {
	start := time.Now()
	res := HTTPResult{Status: models.StatusDown, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.Client.Do(req)
	res.LatencyMS = elapsedMS(start)
	if err != nil {
		res.Error = describeTransportError(err)
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	res.Status = models.StatusUp
	res.StatusCode = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()
	return res
}

func describeTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return "request timed out"
	}
	return err.Error()
}
