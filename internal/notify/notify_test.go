package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type collectSink struct {
	mu     sync.Mutex
	name   string
	events []lifecycle.Event
	err    error
}

func (c *collectSink) Name() string { return c.name }

func (c *collectSink) Deliver(_ context.Context, e lifecycle.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *collectSink) snapshot() []lifecycle.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lifecycle.Event(nil), c.events...)
}

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func sampleEvents() []lifecycle.Event {
	return []lifecycle.Event{
		lifecycle.ReportCreated{ID: 1, EvidenceReference: "ipfs://a", Timestamp: t0},
		lifecycle.StatusChanged{ID: 1, OldStatus: lifecycle.StatusPendingValidation, NewStatus: lifecycle.StatusOpen, Actor: lifecycle.AutomaticActor, Timestamp: t0},
		lifecycle.VoteCast{ID: 1, Phase: lifecycle.PhaseValidation, Support: true, ResultingStatus: lifecycle.StatusOpen, Timestamp: t0},
		lifecycle.CapabilityChanged{Principal: "p", Capability: lifecycle.CapabilitySubmit, Granted: true, Actor: lifecycle.ManualActor("admin"), Timestamp: t0},
	}
}

func TestBusDeliversInOrder(t *testing.T) {
	first := &collectSink{name: "first"}
	second := &collectSink{name: "second"}
	bus := NewBus([]Sink{first, second}, WithBuffer(2))

	events := sampleEvents()
	for i := 0; i < 25; i++ {
		for _, e := range events {
			bus.Notify(e)
		}
	}
	require.NoError(t, bus.Close(context.Background()))

	got := first.snapshot()
	require.Len(t, got, 100)
	for i, e := range got {
		assert.Equal(t, events[i%len(events)].Kind(), e.Kind())
	}
	assert.Equal(t, got, second.snapshot())
}

func TestBusSinkErrorsDoNotStopChain(t *testing.T) {
	failing := &collectSink{name: "failing", err: errors.New("down")}
	healthy := &collectSink{name: "healthy"}

	var mu sync.Mutex
	failures := map[string]int{}
	bus := NewBus([]Sink{failing, healthy}, WithErrorHook(func(sink string, _ error) {
		mu.Lock()
		defer mu.Unlock()
		failures[sink]++
	}))

	for _, e := range sampleEvents() {
		bus.Notify(e)
	}
	require.NoError(t, bus.Close(context.Background()))

	assert.Len(t, healthy.snapshot(), 4)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"failing": 4}, failures)
}

func TestBusDropsAfterClose(t *testing.T) {
	sink := &collectSink{name: "c"}
	bus := NewBus([]Sink{sink})
	require.NoError(t, bus.Close(context.Background()))
	require.NoError(t, bus.Close(context.Background()))

	bus.Notify(sampleEvents()[0])
	assert.Empty(t, sink.snapshot())
}

func TestEnvelope(t *testing.T) {
	raw, err := Encode(sampleEvents()[1])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "StatusChanged", decoded["kind"])
	assert.Equal(t, float64(1), decoded["report_id"])
	event := decoded["event"].(map[string]any)
	assert.Equal(t, "PendingValidation", event["old_status"])
	assert.Equal(t, "Open", event["new_status"])

	_, ok := ReportIDOf(sampleEvents()[3])
	assert.False(t, ok)
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	channels []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return redis.NewIntResult(0, errors.New("connection reset"))
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func TestRedisSink(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "publishes_to_both_channels"},
		{name: "retries_transient_failures", failures: 2},
		{name: "gives_up_after_max_elapsed", failures: 1 << 20, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{failures: tc.failures}
			sink := NewRedisSink(pub, "", 300*time.Millisecond)

			err := sink.Deliver(context.Background(), sampleEvents()[2])
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{DefaultChannel, DefaultChannel + ":VoteCast"}, pub.channels)
			assert.JSONEq(t, string(pub.payloads[0]), string(pub.payloads[1]))
		})
	}
}

func TestRedisSinkStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{failures: 1 << 20}
	sink := NewRedisSink(pub, "events", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sink.Deliver(ctx, sampleEvents()[0])
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
