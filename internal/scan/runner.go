// Package scan drives the external vulnerability scan engine. The engine is a
// subprocess that prints one JSON object per line on stdout:
//
//	{"type":"progress","phase":"crawl","step":2,"total":5,"message":"..."}
//	{"type":"result","report":{"risk_score":72,"findings":[...]}}
//	{"type":"error","message":"..."}
package scan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentinel-monitor/internal/config"
	"sentinel-monitor/internal/progress"
)

var (
	// ErrNotConfigured is returned when no engine command is set.
	ErrNotConfigured = errors.New("scan engine not configured")
	// ErrEngine wraps failures reported by or observed from the engine.
	ErrEngine = errors.New("scan engine failed")
)

const (
	maxLine     = 4 << 20
	stderrTail  = 512
	killTimeout = 5 * time.Second
)

// Severity levels used in findings.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding is one issue in a report.
type Finding struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
}

// Report is the terminal output of a scan.
type Report struct {
	RiskScore int       `json:"risk_score"`
	Findings  []Finding `json:"findings"`
}

// CriticalCount returns the number of critical findings.
func (r Report) CriticalCount() int {
	n := 0
	for _, f := range r.Findings {
		if strings.EqualFold(f.Severity, SeverityCritical) {
			n++
		}
	}
	return n
}

// Request is one scan target.
type Request struct {
	Target string
	Cookie string
}

type message struct {
	Type    string  `json:"type"`
	Phase   string  `json:"phase"`
	Step    int     `json:"step"`
	Total   int     `json:"total"`
	Message string  `json:"message"`
	Report  *Report `json:"report"`
}

// Runner launches the engine once per scan.
type Runner struct {
	command string
	args    []string
	env     []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a runner from config.
func NewRunner(cfg config.ScanConfig, logger *zap.Logger) *Runner {
	return &Runner{
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		timeout: cfg.Timeout.Std(),
		logger:  logger,
	}
}

// Run executes the engine against req.Target and forwards progress lines to
// onProgress until the engine reports a result or an error.
func (r *Runner) Run(ctx context.Context, req Request, onProgress func(progress.Event)) (*Report, error) {
	if r.command == "" {
		return nil, ErrNotConfigured
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(slices.Clone(r.args), "--target", req.Target)
	if req.Cookie != "" {
		args = append(args, "--cookie", req.Cookie)
	}
	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = killTimeout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scan engine: %w", err)
	}

	var (
		report   *Report
		reported string
	)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			r.logger.Debug("ignoring engine output", zap.ByteString("line", truncate(line, 200)))
			continue
		}
		switch msg.Type {
		case "progress":
			if onProgress != nil {
				onProgress(progress.Event{Phase: msg.Phase, Step: msg.Step, Total: msg.Total, Message: msg.Message})
			}
		case "result":
			report = msg.Report
		case "error":
			reported = msg.Message
		default:
			r.logger.Debug("unknown engine message", zap.String("type", msg.Type))
		}
	}
	if err := sc.Err(); err != nil {
		r.logger.Warn("engine output unreadable", zap.Error(err))
	}
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %v", ErrEngine, ctx.Err())
	case reported != "":
		return nil, fmt.Errorf("%w: %s", ErrEngine, reported)
	case report != nil:
		if waitErr != nil {
			r.logger.Warn("engine exited with error after reporting", zap.Error(waitErr))
		}
		return report, nil
	case waitErr != nil:
		return nil, fmt.Errorf("%w: %v: %s", ErrEngine, waitErr, tail(stderr.Bytes()))
	default:
		return nil, fmt.Errorf("%w: exited without a report", ErrEngine)
	}
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return string(b)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
