// Package environment implements the Environment Monitor (spec.md §4.1):
// it periodically polls the external environment aggregator and reduces
// the device-indexed snapshot to a single safe/unsafe SafetyVerdict.
package environment

import (
	"sync"
	"time"

	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/weatherrpc"
	"github.com/rs/zerolog"
)

// GroupSpec configures one ConditionWatcher group, loaded from the
// condition-group specs in the JSON config (spec.md §6).
type GroupSpec struct {
	ConditionKey string
	Device       string
	Parameter    string
	Label        string
	// SafeMax/SafeMin bound the value for the reading to count as Safe.
	// A reading outside [SafeMin, SafeMax] is Warning or Unsafe depending
	// on WarnMargin.
	SafeMin, SafeMax float64
	WarnMargin       float64
}

// Snapshotter is the dependency the Monitor polls each cycle; satisfied by
// *weatherrpc.Client.
type Snapshotter interface {
	Snapshot() (map[string]weatherrpc.Reading, error)
}

// Monitor is the Environment Monitor's poll loop.
type Monitor struct {
	client Snapshotter
	groups []GroupSpec
	bus    *events.Manager
	log    zerolog.Logger

	pollInterval time.Duration

	mu         sync.RWMutex
	verdict    model.SafetyVerdict
	wasSafe    bool
	haveRun    bool

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// New constructs a Monitor. pollInterval is the cadence between Snapshot
// calls; it has no stdlib default because spec.md leaves it
// implementation-configurable.
func New(client Snapshotter, groups []GroupSpec, bus *events.Manager, pollInterval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		client:       client,
		groups:       groups,
		bus:          bus,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "environment").Logger(),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start runs the poll loop in its own goroutine until Stop is called.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop terminates the poll loop. Safe to call once; a second call is a
// no-op.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.stopped
}

func (m *Monitor) loop() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.poll()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// poll fetches one snapshot and reduces it to a verdict, publishing
// EnvironmentSafe/EnvironmentUnsafe on edge transitions.
func (m *Monitor) poll() {
	verdict := m.evaluate()

	m.mu.Lock()
	m.verdict = verdict
	transitioned := !m.haveRun || verdict.Safe != m.wasSafe
	m.wasSafe = verdict.Safe
	m.haveRun = true
	m.mu.Unlock()

	if transitioned {
		if verdict.Safe {
			m.log.Info().Msg("environment safe")
			m.bus.Emit(events.EnvironmentSafe, "environment", map[string]interface{}{
				"last_update": verdict.LastUpdate,
			})
		} else {
			m.log.Warn().Strs("unsafe_conditions", verdict.UnsafeConditions).Msg("environment unsafe")
			m.bus.Emit(events.EnvironmentUnsafe, "environment", map[string]interface{}{
				"unsafe_conditions": verdict.UnsafeConditions,
				"last_update":       verdict.LastUpdate,
			})
		}
	}
}

// evaluate fetches the aggregator snapshot and reduces it per spec.md
// §4.1: a group is unsafe iff any watcher is Unsafe, or every watcher in
// the group is Unknown. Overall safe is the AND across all groups.
func (m *Monitor) evaluate() model.SafetyVerdict {
	now := time.Now()

	snapshot, err := m.client.Snapshot()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to reach environment aggregator")
		unsafe := make([]string, 0, len(m.groups))
		seen := map[string]bool{}
		for _, g := range m.groups {
			if !seen[g.ConditionKey] {
				seen[g.ConditionKey] = true
				unsafe = append(unsafe, g.ConditionKey)
			}
		}
		return model.SafetyVerdict{
			Safe:             false,
			UnsafeConditions: unsafe,
			LastUpdate:       now,
		}
	}

	byGroup := map[string][]WatcherStatus{}
	order := []string{}
	for _, g := range m.groups {
		reading, ok := snapshot[g.Device+"."+g.Parameter]
		status := classify(g, reading, ok)
		if _, seen := byGroup[g.ConditionKey]; !seen {
			order = append(order, g.ConditionKey)
		}
		byGroup[g.ConditionKey] = append(byGroup[g.ConditionKey], status)
	}

	safe := true
	var unsafeConditions []string
	for _, key := range order {
		if groupUnsafe(byGroup[key]) {
			safe = false
			unsafeConditions = append(unsafeConditions, key)
		}
	}

	verdict := model.SafetyVerdict{
		Safe:             safe,
		UnsafeConditions: unsafeConditions,
		LastUpdate:       now,
	}
	if v, ok := snapshot["weather.internal_humidity"]; ok {
		h := v.Value
		verdict.InternalHumidity = &h
	}
	if v, ok := snapshot["weather.external_humidity"]; ok {
		h := v.Value
		verdict.ExternalHumidity = &h
	}
	return verdict
}

// WatcherStatus mirrors model.WatcherStatus but is scoped to this package's
// internal classification step before it's rolled up into the verdict.
type WatcherStatus = model.WatcherStatus

func classify(g GroupSpec, r weatherrpc.Reading, present bool) WatcherStatus {
	if !present || r.Stale {
		return model.WatcherUnknown
	}
	if r.Value < g.SafeMin-g.WarnMargin || r.Value > g.SafeMax+g.WarnMargin {
		return model.WatcherUnsafe
	}
	if r.Value < g.SafeMin || r.Value > g.SafeMax {
		return model.WatcherWarning
	}
	return model.WatcherSafe
}

// groupUnsafe implements spec.md §4.1's per-group rule: unsafe iff any
// watcher is Unsafe, or every watcher is Unknown.
func groupUnsafe(statuses []WatcherStatus) bool {
	allUnknown := true
	for _, s := range statuses {
		if s == model.WatcherUnsafe {
			return true
		}
		if s != model.WatcherUnknown {
			allUnknown = false
		}
	}
	return allUnknown
}

// Verdict returns the most recently published SafetyVerdict. Safe for
// concurrent use; this is the snapshot read the Enclosure Controller
// performs without holding any cross-component lock (spec.md §5).
func (m *Monitor) Verdict() model.SafetyVerdict {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verdict
}
