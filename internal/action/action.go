// Package action defines the Action Runtime Contract (spec.md §4.4): the
// capability set every observing action must satisfy, plus the base that
// runs an Action's worker body as its own cooperative task, recovers from
// panics, and forces a terminal status on exit.
package action

import (
	"fmt"
	"sync"
	"time"

	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/pkg/condwait"
	"github.com/rs/zerolog"
)

// Violation is one schema-validation failure returned by ValidateConfig.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// Action is the polymorphic contract every catalog entry implements
// (spec.md §4.4). Implementations MUST embed *Base and call it from Run
// to get the wait primitive, abort plumbing, and panic/exception policy
// for free — see Base.execute.
type Action interface {
	// ValidateConfig returns every schema violation found in config, pure
	// and callable before scheduling.
	ValidateConfig(config map[string]interface{}) []Violation

	// TaskLabels reports ordered human-readable strings describing
	// remaining work. MUST be safe to call concurrently with Run.
	TaskLabels() []string

	// Run is the worker body. MUST set status to Complete or Error
	// before returning; Base.execute enforces this even if Run panics
	// or returns without doing so itself.
	Run(rt *Runtime)

	// DomeStatusChanged notifies the action of an enclosure open/closed
	// transition.
	DomeStatusChanged(open bool)

	// ReceivedFrame routes one pipeline frame to the action, optionally
	// returning extra header cards for the archiver.
	ReceivedFrame(headers map[string]interface{}) []model.HeaderCard

	// ReceivedGuideProfile routes one guide-star callback to the action.
	ReceivedGuideProfile(headers map[string]interface{}, profileX, profileY []float64) []model.HeaderCard
}

// Runnable is the full surface the Scheduler drives: the Action contract
// plus the lifecycle operations every catalog entry gets for free by
// embedding *Base (Start, Abort, Status, Done, Name, LogName are promoted
// automatically). Catalog factories return Runnable so the Scheduler
// never needs a type assertion to reach abort() — spec.md §4.4 lists
// abort() as one of the seven capabilities, but its implementation is
// always the shared Base, never action-specific.
type Runnable interface {
	Action
	Start(domeIsOpen bool)
	Abort()
	Status() model.ActionStatus
	Done() <-chan struct{}
	Name() string
	LogName() string
	// NotifyDomeStatusChanged is the external caller's entry point for a
	// dome transition: it updates the Runtime's DomeIsOpen() state before
	// forwarding to DomeStatusChanged. Callers outside this package MUST
	// use this, not DomeStatusChanged directly, or Runtime.DomeIsOpen
	// goes stale.
	NotifyDomeStatusChanged(open bool)
}

// Runtime is the handle an Action's Run body uses to cooperate with the
// scheduler: waiting, checking abort, and reading the live dome signal.
// It is the only thing a Run implementation should touch on *Base — never
// mutate Base fields directly from outside execute/Abort.
type Runtime struct {
	base *Base
}

// WaitUntilOrAborted blocks until target passes or Abort is observed,
// re-checking at least every checkInterval. It is the SOLE primitive
// every Action MUST route timed waits through (spec.md §4.4): routing a
// raw time.Sleep instead breaks the one-check_interval abort-latency
// guarantee.
func (rt *Runtime) WaitUntilOrAborted(target time.Time, checkInterval time.Duration) bool {
	b := rt.base
	b.mu.Lock()
	defer b.mu.Unlock()
	return condwait.WaitUntilOrAborted(b.cond, target, func() bool { return b.aborted }, checkInterval)
}

// Aborted reports whether cooperative cancellation has been requested.
func (rt *Runtime) Aborted() bool {
	return rt.base.Aborted()
}

// DomeIsOpen reports the last dome_status_changed value observed, or the
// value supplied at start(dome_is_open) if no transition has happened yet.
func (rt *Runtime) DomeIsOpen() bool {
	return rt.base.DomeIsOpen()
}

// SetStatus lets a Run body move itself to Complete or Error explicitly,
// ahead of returning (useful for actions with multiple success/failure
// exit points). Base.execute still enforces terminality on return.
func (rt *Runtime) SetStatus(s model.ActionStatus) {
	rt.base.setStatus(s)
}

// Log is a sub-logger scoped to this action instance.
func (rt *Runtime) Log() zerolog.Logger {
	return rt.base.log
}

// Base is the shared state and lifecycle every catalog action embeds.
// It owns the status/aborted/dome_is_open fields the scheduler reads and
// writes, guarded by a single mutex paired with a condition variable for
// wake-ups (spec.md §5 locking discipline: "a condition variable is
// always paired with the same mutex").
type Base struct {
	name     string
	logName  string
	site     string
	delegate Action

	mu         sync.Mutex
	cond       *sync.Cond
	status     model.ActionStatus
	aborted    bool
	domeIsOpen bool
	started    bool
	done       chan struct{}

	log zerolog.Logger
}

// NewBase constructs a Base. delegate is the concrete Action whose Run
// will be invoked; it is usually the same struct embedding this Base.
func NewBase(name, logName, site string, delegate Action, log zerolog.Logger) *Base {
	b := &Base{
		name:     name,
		logName:  logName,
		site:     site,
		delegate: delegate,
		status:   model.ActionIncomplete,
		done:     make(chan struct{}),
		log: log.With().
			Str("component", "action").
			Str("action", logName).
			Logger(),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Name is the catalog type key this instance was created from.
func (b *Base) Name() string { return b.name }

// LogName is the human-readable identity used in log lines and status.
func (b *Base) LogName() string { return b.logName }

// Status returns the action's current lifecycle status.
func (b *Base) Status() model.ActionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Aborted reports whether Abort has been called.
func (b *Base) Aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// DomeIsOpen returns the last-known dome state.
func (b *Base) DomeIsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.domeIsOpen
}

// TaskLabels delegates to the embedding Action; safe to call concurrently
// with Run per the contract.
func (b *Base) TaskLabels() []string {
	return b.delegate.TaskLabels()
}

// Start launches Run in its own goroutine. domeIsOpen seeds the initial
// dome signal the Runtime will report until the first DomeStatusChanged.
// Start is single-shot: a second call is a no-op.
func (b *Base) Start(domeIsOpen bool) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.domeIsOpen = domeIsOpen
	b.mu.Unlock()

	go b.execute()
}

// Done returns a channel closed once the action reaches a terminal
// status, for callers (tests, the scheduler) that want to wait on it.
func (b *Base) Done() <-chan struct{} {
	return b.done
}

// execute runs the delegate's Run body, enforcing the exception policy:
// any panic is recovered, the status is forced to Error, and a
// structured log line is emitted (spec.md §4.4 "Exception policy").
func (b *Base) execute() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("action", b.logName).
				Msg("action run panicked, forcing error status")
			b.setStatus(model.ActionError)
		}
		// Run MUST set a terminal status; if it returned without doing
		// so, force Error rather than leave the scheduler waiting on an
		// action that looks perpetually Incomplete.
		if !b.Status().Terminal() {
			b.log.Error().Str("action", b.logName).Msg("action returned without reaching a terminal status")
			b.setStatus(model.ActionError)
		}
	}()

	b.log.Info().Msg("action started")
	b.delegate.Run(&Runtime{base: b})
}

// Abort requests cooperative termination: sets aborted and wakes any
// pending WaitUntilOrAborted. Idempotent and safe from another goroutine
// (spec.md §4.4).
func (b *Base) Abort() {
	b.mu.Lock()
	b.aborted = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// NotifyDomeStatusChanged records the new dome state and forwards the
// notification to the delegate. Called by the scheduler under its own
// lock, serialized with other callbacks per action (spec.md §5).
func (b *Base) NotifyDomeStatusChanged(open bool) {
	b.mu.Lock()
	b.domeIsOpen = open
	b.mu.Unlock()
	b.delegate.DomeStatusChanged(open)
}

// ReceivedFrame forwards a pipeline frame callback to the delegate,
// enforcing the same exception policy as execute (spec.md §8 B4): a
// panic is recovered, logged, and forces the action to Error rather
// than propagating into the scheduler/Facade caller and leaving the
// action wedged Incomplete forever.
func (b *Base) ReceivedFrame(headers map[string]interface{}) (cards []model.HeaderCard) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("action", b.logName).
				Msg("received_frame panicked, forcing error status")
			b.setStatus(model.ActionError)
			cards = nil
		}
	}()
	return b.delegate.ReceivedFrame(headers)
}

// ReceivedGuideProfile forwards a guide-profile callback to the
// delegate, enforcing the same exception policy as execute (spec.md §8
// B4): a panic is recovered, logged, and forces the action to Error.
func (b *Base) ReceivedGuideProfile(headers map[string]interface{}, x, y []float64) (cards []model.HeaderCard) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("action", b.logName).
				Msg("received_guide_profile panicked, forcing error status")
			b.setStatus(model.ActionError)
			cards = nil
		}
	}()
	return b.delegate.ReceivedGuideProfile(headers, x, y)
}

func (b *Base) setStatus(s model.ActionStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	b.cond.Broadcast()
}
