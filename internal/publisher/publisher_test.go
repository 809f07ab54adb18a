package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilal/regionpulse/internal/aggregator"
	"github.com/bilal/regionpulse/internal/telemetry"
)

type fakeSink struct {
	mu       sync.Mutex
	batches  [][]ReportEvent
	failures int // fail this many deliveries before succeeding; -1 fails forever
	attempts int
	closed   bool
}

func (s *fakeSink) Deliver(_ context.Context, batch []ReportEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("collector unavailable")
	}
	s.batches = append(s.batches, append([]ReportEvent(nil), batch...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) delivered() []ReportEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ReportEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type countingObserver struct {
	mu        sync.Mutex
	published int
	dropped   int
}

func (o *countingObserver) ReportsPublished(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published += n
}

func (o *countingObserver) ReportsDropped(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped += n
}

func (o *countingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.published, o.dropped
}

func event(id string) ReportEvent {
	ds := telemetry.NewDataset([]telemetry.Record{{Region: "us", LatencyMs: 120, UptimePercent: 99.5}})
	threshold := 180.0
	return ReportEvent{
		CorrelationID: id,
		ThresholdMs:   &threshold,
		Regions:       []string{"us"},
		Report:        aggregator.Compute(ds, []string{"us"}, 180),
	}
}

func ids(events []ReportEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.CorrelationID
	}
	return out
}

func TestPublisher_ShutdownFlushesQueue(t *testing.T) {
	sink := &fakeSink{}
	obs := &countingObserver{}
	p := New(sink, Options{BatchSize: 100, FlushInterval: time.Hour, MaxAttempts: 1}, obs)
	p.Start()

	p.Publish(event("a"))
	p.Publish(event("b"))
	p.Publish(event("c"))

	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, ids(sink.delivered()))
	assert.True(t, sink.closed)
	published, dropped := obs.counts()
	assert.Equal(t, 3, published)
	assert.Equal(t, 0, dropped)
}

func TestPublisher_FlushesFullBatches(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, Options{BatchSize: 2, FlushInterval: time.Hour, MaxAttempts: 1}, nil)
	p.Start()
	defer p.Shutdown(context.Background())

	for _, id := range []string{"a", "b", "c", "d"} {
		p.Publish(event(id))
	}

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 4
	}, 2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		assert.Len(t, b, 2)
	}
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond, MaxAttempts: 1}, nil)
	p.Start()
	defer p.Shutdown(context.Background())

	p.Publish(event("lonely"))

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublisher_RetriesThenDelivers(t *testing.T) {
	sink := &fakeSink{failures: 2}
	obs := &countingObserver{}
	p := New(sink, Options{BatchSize: 1, FlushInterval: time.Hour, MaxAttempts: 3, BaseDelay: time.Millisecond}, obs)
	p.Start()

	p.Publish(event("retry-me"))
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, []string{"retry-me"}, ids(sink.delivered()))
	assert.Equal(t, 3, sink.attempts)
	published, _ := obs.counts()
	assert.Equal(t, 1, published)
}

func TestPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	sink := &fakeSink{failures: -1}
	obs := &countingObserver{}
	p := New(sink, Options{BatchSize: 1, FlushInterval: time.Hour, MaxAttempts: 2, BaseDelay: time.Millisecond}, obs)
	p.Start()

	p.Publish(event("doomed"))
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Empty(t, sink.delivered())
	assert.Equal(t, 2, sink.attempts)
	published, dropped := obs.counts()
	assert.Equal(t, 0, published)
	assert.Equal(t, 1, dropped)
}

func TestPublisher_ShutdownTimeoutAbandonsBackoff(t *testing.T) {
	sink := &fakeSink{failures: -1}
	p := New(sink, Options{BatchSize: 1, FlushInterval: time.Hour, MaxAttempts: 10, BaseDelay: time.Hour}, nil)
	p.Start()
	p.Publish(event("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, sink.closed)
}

func TestPublisher_QueueFullDropsOldest(t *testing.T) {
	sink := &fakeSink{}
	obs := &countingObserver{}
	// not started yet, so the queue fills up
	p := New(sink, Options{QueueSize: 2, BatchSize: 100, FlushInterval: time.Hour, MaxAttempts: 1}, obs)

	p.Publish(event("first"))
	p.Publish(event("second"))
	p.Publish(event("third"))

	_, dropped := obs.counts()
	assert.Equal(t, 1, dropped)

	p.Start()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []string{"second", "third"}, ids(sink.delivered()))
}

func TestPublisher_FillsCorrelationAndTimestamp(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, Options{MaxAttempts: 1}, nil)
	p.Start()

	ev := event("")
	p.Publish(ev)
	require.NoError(t, p.Shutdown(context.Background()))

	got := sink.delivered()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].CorrelationID)
	assert.False(t, got[0].Timestamp.IsZero())
}
