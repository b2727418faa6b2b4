package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel-monitor/internal/progress"
	"sentinel-monitor/internal/services"
)

type engineFunc func(ctx context.Context, req Request, onProgress func(progress.Event)) (*Report, error)

func (f engineFunc) Run(ctx context.Context, req Request, onProgress func(progress.Event)) (*Report, error) {
	return f(ctx, req, onProgress)
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []services.ScanSummary
}

func (n *recordingNotifier) NotifyScanCompleted(_ context.Context, s services.ScanSummary) services.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return services.Report{Attempted: 1, Succeeded: 1}
}

func (n *recordingNotifier) all() []services.ScanSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.ScanSummary(nil), n.summaries...)
}

func waitDone(t *testing.T, b *progress.Broker, id string) progress.Event {
	t.Helper()
	var last progress.Event
	require.Eventually(t, func() bool {
		ev, ok := b.Last(id)
		last = ev
		return ok && ev.Done
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestManager_CompletedScan(t *testing.T) {
	broker := progress.NewBroker(zap.NewNop(), time.Minute)
	notifier := &recordingNotifier{}
	engine := engineFunc(func(_ context.Context, req Request, onProgress func(progress.Event)) (*Report, error) {
		onProgress(progress.Event{Phase: "crawl", Step: 1, Total: 1})
		return &Report{RiskScore: 40, Findings: []Finding{{Severity: SeverityCritical, Title: req.Target}}}, nil
	})
	m := NewManager(engine, broker, notifier, 1, zap.NewNop())

	id, err := m.Start(Request{Target: "https://shop.example"})
	require.NoError(t, err)
	final := waitDone(t, broker, id)
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, "completed", final.Phase)
	report, ok := final.Result.(*Report)
	require.True(t, ok)
	assert.Equal(t, 40, report.RiskScore)

	sums := notifier.all()
	require.Len(t, sums, 1)
	assert.Equal(t, services.ScanSummary{ID: id, Target: "https://shop.example", RiskScore: 40, CriticalCount: 1, FindingCount: 1}, sums[0])
}

func TestManager_FailedScanStillNotifies(t *testing.T) {
	broker := progress.NewBroker(zap.NewNop(), time.Minute)
	notifier := &recordingNotifier{}
	engine := engineFunc(func(context.Context, Request, func(progress.Event)) (*Report, error) {
		return nil, errors.New("refused")
	})
	m := NewManager(engine, broker, notifier, 1, zap.NewNop())

	id, err := m.Start(Request{Target: "https://a.example"})
	require.NoError(t, err)
	final := waitDone(t, broker, id)
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, "failed", final.Phase)
	assert.Equal(t, "refused", final.Error)
	require.Len(t, notifier.all(), 1)
	assert.Equal(t, "refused", notifier.all()[0].Error)
}

func TestManager_PanickingEngine(t *testing.T) {
	broker := progress.NewBroker(zap.NewNop(), time.Minute)
	engine := engineFunc(func(context.Context, Request, func(progress.Event)) (*Report, error) {
		panic("boom")
	})
	m := NewManager(engine, broker, nil, 1, zap.NewNop())

	id, err := m.Start(Request{Target: "https://a.example"})
	require.NoError(t, err)
	final := waitDone(t, broker, id)
	assert.Contains(t, final.Error, "boom")
}

func TestManager_ConcurrencyCapAndStop(t *testing.T) {
	broker := progress.NewBroker(zap.NewNop(), time.Minute)
	started := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, _ Request, _ func(progress.Event)) (*Report, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := NewManager(engine, broker, nil, 1, zap.NewNop())

	id, err := m.Start(Request{Target: "https://a.example"})
	require.NoError(t, err)
	<-started

	_, err = m.Start(Request{Target: "https://b.example"})
	assert.ErrorIs(t, err, ErrTooManyScans)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	final, ok := broker.Last(id)
	require.True(t, ok)
	assert.True(t, final.Done)
	assert.Equal(t, "failed", final.Phase)

	_, err = m.Start(Request{Target: "https://c.example"})
	assert.Error(t, err)
}
