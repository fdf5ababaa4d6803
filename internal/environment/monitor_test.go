package environment

import (
	"errors"
	"testing"
	"time"

	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/weatherrpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	readings map[string]weatherrpc.Reading
	err      error
}

func (f *fakeSnapshotter) Snapshot() (map[string]weatherrpc.Reading, error) {
	return f.readings, f.err
}

func testGroups() []GroupSpec {
	return []GroupSpec{
		{ConditionKey: "humidity", Device: "weather", Parameter: "internal_humidity", SafeMin: 0, SafeMax: 80},
		{ConditionKey: "rain", Device: "weather", Parameter: "rain", SafeMin: 0, SafeMax: 0},
	}
}

func TestMonitor_AllSafe(t *testing.T) {
	fs := &fakeSnapshotter{readings: map[string]weatherrpc.Reading{
		"weather.internal_humidity": {Value: 40, Stale: false},
		"weather.rain":               {Value: 0, Stale: false},
	}}
	m := New(fs, testGroups(), events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), time.Hour, zerolog.Nop())

	v := m.evaluate()
	assert.True(t, v.Safe)
	assert.Empty(t, v.UnsafeConditions)
	require.NotNil(t, v.InternalHumidity)
	assert.Equal(t, 40.0, *v.InternalHumidity)
}

func TestMonitor_UnsafeWhenAnyWatcherUnsafe(t *testing.T) {
	fs := &fakeSnapshotter{readings: map[string]weatherrpc.Reading{
		"weather.internal_humidity": {Value: 95, Stale: false},
		"weather.rain":               {Value: 0, Stale: false},
	}}
	m := New(fs, testGroups(), events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), time.Hour, zerolog.Nop())

	v := m.evaluate()
	assert.False(t, v.Safe)
	assert.Contains(t, v.UnsafeConditions, "humidity")
	assert.NotContains(t, v.UnsafeConditions, "rain")
}

func TestMonitor_UnsafeWhenGroupAllUnknown(t *testing.T) {
	fs := &fakeSnapshotter{readings: map[string]weatherrpc.Reading{
		"weather.internal_humidity": {Value: 40, Stale: true},
		"weather.rain":               {Value: 0, Stale: false},
	}}
	m := New(fs, testGroups(), events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), time.Hour, zerolog.Nop())

	v := m.evaluate()
	assert.False(t, v.Safe)
	assert.Contains(t, v.UnsafeConditions, "humidity")
}

func TestMonitor_AggregatorFailureIsUnsafe(t *testing.T) {
	fs := &fakeSnapshotter{err: errors.New("connection refused")}
	m := New(fs, testGroups(), events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), time.Hour, zerolog.Nop())

	v := m.evaluate()
	assert.False(t, v.Safe)
	assert.ElementsMatch(t, []string{"humidity", "rain"}, v.UnsafeConditions)
}

func TestMonitor_EmitsOnEdgeTransitionOnly(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	mgr := events.NewManager(bus, zerolog.Nop())

	var unsafeCount, safeCount int
	done := make(chan struct{}, 10)
	bus.Subscribe(events.EnvironmentUnsafe, func(*events.Event) { unsafeCount++; done <- struct{}{} })
	bus.Subscribe(events.EnvironmentSafe, func(*events.Event) { safeCount++; done <- struct{}{} })

	fs := &fakeSnapshotter{readings: map[string]weatherrpc.Reading{
		"weather.internal_humidity": {Value: 40, Stale: false},
		"weather.rain":               {Value: 0, Stale: false},
	}}
	m := New(fs, testGroups(), mgr, time.Hour, zerolog.Nop())

	m.poll()
	<-done
	assert.Equal(t, 1, safeCount)

	// Second poll, still safe: no further emission.
	m.poll()
	select {
	case <-done:
		t.Fatal("unexpected emission on non-transitioning poll")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, safeCount)

	// Transition to unsafe.
	fs.readings["weather.rain"] = weatherrpc.Reading{Value: 0, Stale: true}
	fs.readings["weather.internal_humidity"] = weatherrpc.Reading{Value: 0, Stale: true}
	m.poll()
	<-done
	assert.Equal(t, 1, unsafeCount)
}

func TestMonitor_VerdictIsSnapshot(t *testing.T) {
	fs := &fakeSnapshotter{readings: map[string]weatherrpc.Reading{
		"weather.internal_humidity": {Value: 40, Stale: false},
		"weather.rain":               {Value: 0, Stale: false},
	}}
	m := New(fs, testGroups(), events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), time.Hour, zerolog.Nop())
	m.poll()

	v := m.Verdict()
	assert.True(t, v.Safe)
	assert.WithinDuration(t, time.Now(), v.LastUpdate, time.Second)
}
