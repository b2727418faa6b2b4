package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) listen(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) steps() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Step
	}
	return out
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	var a, c collector
	unsubA := b.Subscribe("scan-1", a.listen)
	unsubC := b.Subscribe("scan-1", c.listen)
	defer unsubA()
	defer unsubC()

	b.Emit("scan-1", Event{Phase: "crawl", Step: 1, Total: 3})
	b.Emit("scan-1", Event{Phase: "crawl", Step: 2, Total: 3})
	b.Emit("scan-2", Event{Step: 9})

	assert.Equal(t, []int{1, 2}, a.steps())
	assert.Equal(t, []int{1, 2}, c.steps())
}

func TestBroker_LateSubscriberGetsLastEvent(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	b.Emit("batch", Event{Step: 1, Total: 4})
	b.Emit("batch", Event{Step: 2, Total: 4, Message: "Billing"})

	var late collector
	unsub := b.Subscribe("batch", late.listen)
	defer unsub()

	require.Len(t, late.events, 1)
	assert.Equal(t, 2, late.events[0].Step)
	assert.Equal(t, "Billing", late.events[0].Message)
	assert.False(t, late.events[0].Time.IsZero())
}

func TestBroker_NoReplayWithoutEvents(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	var c collector
	unsub := b.Subscribe("x", c.listen)
	defer unsub()
	assert.Empty(t, c.events)
	_, ok := b.Last("x")
	assert.False(t, ok)
}

func TestBroker_LastListenerLeavingDiscardsState(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	var a, c collector
	unsubA := b.Subscribe("id", a.listen)
	unsubC := b.Subscribe("id", c.listen)
	b.Emit("id", Event{Step: 1})

	unsubA()
	unsubA()
	assert.Equal(t, 1, b.Len())
	_, ok := b.Last("id")
	assert.True(t, ok)

	unsubC()
	assert.Equal(t, 0, b.Len())
	_, ok = b.Last("id")
	assert.False(t, ok)

	b.Emit("id", Event{Step: 2})
	assert.Equal(t, []int{1}, a.steps())
	assert.Equal(t, []int{1}, c.steps())
}

func TestBroker_FinishedTopicExpires(t *testing.T) {
	b := NewBroker(zap.NewNop(), 20*time.Millisecond)
	b.Emit("scan", Event{Done: true, Result: map[string]int{"risk_score": 80}})

	ev, ok := b.Last("scan")
	require.True(t, ok)
	assert.True(t, ev.Done)

	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroker_FinishedTopicKeptWhileWatched(t *testing.T) {
	b := NewBroker(zap.NewNop(), 10*time.Millisecond)
	var c collector
	unsub := b.Subscribe("scan", c.listen)
	b.Emit("scan", Event{Done: true})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.Len())
	unsub()
	assert.Equal(t, 0, b.Len())
}

func TestBroker_PanickingListenerIsContained(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	var c collector
	unsubBad := b.Subscribe("id", func(Event) { panic("boom") })
	unsubGood := b.Subscribe("id", c.listen)
	defer unsubBad()
	defer unsubGood()

	assert.NotPanics(t, func() { b.Emit("id", Event{Step: 1}) })
	assert.Equal(t, []int{1}, c.steps())
}

func TestBroker_ConcurrentUse(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Emit("shared", Event{Step: j})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				unsub := b.Subscribe("shared", func(Event) {})
				unsub()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, b.Len(), 1)
}

func TestBroker_ReplayPrecedesConcurrentEmit(t *testing.T) {
	b := NewBroker(zap.NewNop(), time.Minute)
	b.Emit("scan", Event{Step: 1})

	var c collector
	entered := make(chan struct{})
	release := make(chan struct{})
	subscribed := make(chan func())
	go func() {
		subscribed <- b.Subscribe("scan", func(ev Event) {
			if ev.Step == 1 {
				close(entered)
				<-release
			}
			c.listen(ev)
		})
	}()
	<-entered

	emitted := make(chan struct{})
	go func() {
		b.Emit("scan", Event{Step: 2, Done: true})
		close(emitted)
	}()
	select {
	case <-emitted:
		t.Fatal("emit delivered while the replay was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	unsub := <-subscribed
	defer unsub()
	<-emitted
	assert.Equal(t, []int{1, 2}, c.steps())
}
