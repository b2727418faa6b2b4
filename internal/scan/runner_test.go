package scan

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel-monitor/internal/config"
	"sentinel-monitor/internal/progress"
)

// TestHelperProcess is not a real test. It plays the scan engine when the
// runner re-executes the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 0 {
		args = args[1:]
	}
	var target, cookie string
	for i := 0; i+1 < len(args); i += 2 {
		switch args[i] {
		case "--target":
			target = args[i+1]
		case "--cookie":
			cookie = args[i+1]
		}
	}

	switch os.Getenv("HELPER_MODE") {
	case "ok":
		fmt.Println("engine v1 starting")
		fmt.Println(`{"type":"progress","phase":"crawl","step":1,"total":2,"message":"crawling"}`)
		fmt.Println("")
		fmt.Println(`{"type":"progress","phase":"audit","step":2,"total":2}`)
		fmt.Printf(`{"type":"result","report":{"risk_score":64,"findings":[{"severity":"critical","title":%q},{"severity":"low","title":%q}]}}`+"\n", target, cookie)
	case "error":
		fmt.Println(`{"type":"progress","phase":"crawl","step":1,"total":3}`)
		fmt.Println(`{"type":"error","message":"target refused connection"}`)
	case "crash":
		fmt.Fprintln(os.Stderr, "panic: engine exploded")
		os.Exit(3)
	case "silent":
	case "hang":
		time.Sleep(10 * time.Second)
	}
}

func helperRunner(mode string, timeout time.Duration) *Runner {
	return NewRunner(config.ScanConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Timeout: config.Duration(timeout),
		Env:     []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
	}, zap.NewNop())
}

func TestRunner_ReportAndProgress(t *testing.T) {
	var events []progress.Event
	report, err := helperRunner("ok", time.Minute).Run(context.Background(),
		Request{Target: "https://shop.example", Cookie: "sid=1"},
		func(ev progress.Event) { events = append(events, ev) })
	require.NoError(t, err)

	assert.Equal(t, 64, report.RiskScore)
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "https://shop.example", report.Findings[0].Title)
	assert.Equal(t, "sid=1", report.Findings[1].Title)
	assert.Equal(t, 1, report.CriticalCount())

	require.Len(t, events, 2)
	assert.Equal(t, "crawl", events[0].Phase)
	assert.Equal(t, "crawling", events[0].Message)
	assert.Equal(t, 2, events[1].Step)
	assert.Equal(t, 2, events[1].Total)
}

func TestRunner_NoCookieFlagWhenEmpty(t *testing.T) {
	report, err := helperRunner("ok", time.Minute).Run(context.Background(), Request{Target: "https://a.example"}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Findings[1].Title)
}

func TestRunner_EngineError(t *testing.T) {
	_, err := helperRunner("error", time.Minute).Run(context.Background(), Request{Target: "https://a.example"}, nil)
	require.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "target refused connection")
}

func TestRunner_CrashIncludesStderr(t *testing.T) {
	_, err := helperRunner("crash", time.Minute).Run(context.Background(), Request{Target: "https://a.example"}, nil)
	require.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "engine exploded")
}

func TestRunner_NoReport(t *testing.T) {
	_, err := helperRunner("silent", time.Minute).Run(context.Background(), Request{Target: "https://a.example"}, nil)
	require.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "without a report")
}

func TestRunner_Timeout(t *testing.T) {
	start := time.Now()
	_, err := helperRunner("hang", 200*time.Millisecond).Run(context.Background(), Request{Target: "https://a.example"}, nil)
	require.ErrorIs(t, err, ErrEngine)
	assert.True(t, strings.Contains(err.Error(), "deadline exceeded"), err.Error())
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestRunner_NotConfigured(t *testing.T) {
	_, err := NewRunner(config.ScanConfig{}, zap.NewNop()).Run(context.Background(), Request{Target: "x"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReport_CriticalCountIgnoresCase(t *testing.T) {
	r := Report{Findings: []Finding{{Severity: "CRITICAL"}, {Severity: "high"}, {Severity: "critical"}}}
	assert.Equal(t, 2, r.CriticalCount())
}
