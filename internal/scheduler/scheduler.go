// Package scheduler implements the Action Scheduler (spec.md §4.3): a
// single-execution-slot queue runner that advances one Action at a time,
// arbitrates Automatic/Manual/Error mode against the operator, derives
// dome_is_open from the Enclosure, and fans out pipeline callbacks to
// whichever action is active.
package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/obscore/supervisor/internal/action"
	"github.com/obscore/supervisor/internal/catalog"
	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/shutterrpc"
	"github.com/obscore/supervisor/pkg/condwait"
	"github.com/rs/zerolog"
)

// ErrInErrorState is returned by RequestMode(Automatic) while the
// scheduler is in Error: the operator must reset via Manual first
// (spec.md §3 "Error -> Manual only by explicit operator reset").
var ErrInErrorState = errors.New("scheduler: in error state, reset via manual mode first")

// DomeSource is the Enclosure Controller's read surface the Scheduler
// needs: dome_is_open is true iff status is Open OR mode is Manual
// (spec.md §4.3 step 1 — "in Manual enclosure mode the scheduler trusts
// the operator").
type DomeSource interface {
	Status() shutterrpc.Status
	Mode() model.OperationsMode
}

// queueItem is one FIFO slot: the catalog type key alongside the built
// Runnable, kept together so status() can report both without a type
// assertion back into the catalog.
type queueItem struct {
	typeKey string
	act     action.Runnable
}

// Scheduler is the Action Scheduler's long-running task.
type Scheduler struct {
	dome     DomeSource
	registry *catalog.Registry
	bus      *events.Manager
	site     string
	log      zerolog.Logger

	loopDelay time.Duration

	mu            sync.Mutex
	cond          *sync.Cond
	mode          model.OperationsMode
	requestedMode model.OperationsMode
	queue         []queueItem
	active        *queueItem
	lastDomeOpen  bool
	idle          bool

	stopped bool
	done    chan struct{}
}

// New constructs a Scheduler in Manual mode with an empty queue.
func New(dome DomeSource, registry *catalog.Registry, bus *events.Manager, site string, loopDelay time.Duration, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		dome:          dome,
		registry:      registry,
		bus:           bus,
		site:          site,
		loopDelay:     loopDelay,
		log:           log.With().Str("component", "scheduler").Logger(),
		mode:          model.ModeManual,
		requestedMode: model.ModeManual,
		done:          make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start runs the scheduling loop in its own goroutine.
func (s *Scheduler) Start() { go s.loop() }

// Stop terminates the scheduling loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped {
			return
		}
		s.tickLocked()
		if s.stopped {
			return
		}
		condwait.SleepInterruptible(s.cond, s.loopDelay)
	}
}

// Mode returns the scheduler's current OperationsMode.
func (s *Scheduler) Mode() model.OperationsMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RequestMode requests a transition to Automatic or Manual.
//
// Automatic requests take effect immediately unless mode is Error, in
// which case ErrInErrorState is returned and nothing changes — the
// operator must request Manual first (spec.md §3, §4.3 step 2).
//
// Manual requests always return nil but do not take effect synchronously:
// they abort the active action and clear the queue, and the mode only
// flips to Manual once the active slot empties on a later tick (spec.md
// §4.3 step 3, "Manual requests take effect after the active action has
// cleaned up").
func (s *Scheduler) RequestMode(target model.OperationsMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestedMode = target
	if target == model.ModeAutomatic {
		if s.mode == model.ModeError {
			return ErrInErrorState
		}
		s.setModeLocked(model.ModeAutomatic)
	}
	s.cond.Broadcast()
	return nil
}

// Enqueue appends an action to the tail of the FIFO queue (spec.md §4.3
// "strict FIFO of submission order"). Schedule Ingest supplies typeKey so
// status() can report it without reaching back into the catalog.
func (s *Scheduler) Enqueue(typeKey string, act action.Runnable) {
	s.mu.Lock()
	s.queue = append(s.queue, queueItem{typeKey: typeKey, act: act})
	s.idle = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Abort clears the queue and requests cooperative termination of the
// active action, if any. Idempotent and asynchronous: the action is not
// guaranteed terminal when Abort returns (spec.md §4.3 "Abort semantics").
func (s *Scheduler) Abort() {
	s.mu.Lock()
	s.queue = nil
	active := s.active
	s.mu.Unlock()
	if active != nil {
		active.act.Abort()
	}
	s.cond.Broadcast()
}

// NotifyFrame routes one pipeline frame to the active action, returning
// any extra header cards it wants stamped onto the archived image.
// Dropped (returns nil) if no action is active (spec.md §4.3 "Pipeline
// event routing").
func (s *Scheduler) NotifyFrame(headers map[string]interface{}) []model.HeaderCard {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.act.ReceivedFrame(headers)
}

// NotifyGuideProfile routes one guide-star callback to the active action.
func (s *Scheduler) NotifyGuideProfile(headers map[string]interface{}, x, y []float64) []model.HeaderCard {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.act.ReceivedGuideProfile(headers, x, y)
}

// Status returns the Scheduler's status() snapshot (spec.md §3
// ScheduleStatus): the active action first, then the queued ones, in
// submission order.
func (s *Scheduler) Status() model.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []model.ScheduledActionStatus
	if s.active != nil {
		rows = append(rows, model.ScheduledActionStatus{
			Name:       s.active.act.LogName(),
			TaskLabels: s.active.act.TaskLabels(),
		})
	}
	for _, q := range s.queue {
		rows = append(rows, model.ScheduledActionStatus{
			Name:       q.act.LogName(),
			TaskLabels: q.act.TaskLabels(),
		})
	}

	return model.ScheduleStatus{
		Mode:          s.mode,
		RequestedMode: s.requestedMode,
		StatusUpdated: time.Now(),
		Schedule:      rows,
	}
}

// domeIsOpenLocked implements spec.md §4.3 step 1.
func (s *Scheduler) domeIsOpenLocked() bool {
	return s.dome.Status() == shutterrpc.StatusOpen || s.dome.Mode() == model.ModeManual
}

// tickLocked performs one scheduling tick. s.mu must be held.
func (s *Scheduler) tickLocked() {
	s.reconcileModeLocked()

	if s.mode != model.ModeAutomatic {
		return
	}

	domeOpen := s.domeIsOpenLocked()

	if s.active == nil {
		switch {
		case len(s.queue) > 0:
			s.startHeadLocked(domeOpen)
		case !s.idle:
			s.enqueueParkLocked()
			s.startHeadLocked(domeOpen)
		}
		s.lastDomeOpen = domeOpen
		return
	}

	s.pollActiveLocked(domeOpen)
}

// reconcileModeLocked implements spec.md §4.3 step 3: a pending Manual
// request aborts the active action and clears the queue on its first
// observation, then flips mode to Manual once the active slot empties on
// a later tick. Automatic requests are handled synchronously in
// RequestMode and need no per-tick reconciliation here.
func (s *Scheduler) reconcileModeLocked() {
	if s.requestedMode != model.ModeManual || s.mode == model.ModeManual {
		return
	}
	s.queue = nil
	if s.active != nil {
		s.active.act.Abort()
		return
	}
	s.setModeLocked(model.ModeManual)
}

func (s *Scheduler) setModeLocked(m model.OperationsMode) {
	if s.mode == m {
		return
	}
	s.mode = m
	s.bus.Emit(events.SchedulerModeChanged, "scheduler", map[string]interface{}{"mode": string(m)})
}

func (s *Scheduler) startHeadLocked(domeOpen bool) {
	head := s.queue[0]
	s.queue = s.queue[1:]
	s.active = &head
	s.lastDomeOpen = domeOpen
	s.log.Info().Str("action", head.act.LogName()).Str("type", head.typeKey).Msg("starting action")
	s.bus.Emit(events.ActionStarted, "scheduler", map[string]interface{}{"action": head.act.LogName(), "type": head.typeKey})
	head.act.Start(domeOpen)
}

// enqueueParkLocked implements spec.md §4.3 step 4's implicit
// ParkTelescope: enqueued once per queue-drain, then the idle flag
// suppresses repeated parking.
func (s *Scheduler) enqueueParkLocked() {
	park := s.registry.MustBuild("park_telescope", s.site, nil, s.log)
	s.queue = append(s.queue, queueItem{typeKey: "park_telescope", act: park})
	s.idle = true
}

// pollActiveLocked implements spec.md §4.3 step 4's active-slot polling.
func (s *Scheduler) pollActiveLocked(domeOpen bool) {
	switch s.active.act.Status() {
	case model.ActionError:
		s.log.Error().Str("action", s.active.act.LogName()).Msg("action errored, clearing queue")
		s.bus.Emit(events.ActionErrored, "scheduler", map[string]interface{}{"action": s.active.act.LogName()})
		s.queue = nil
		s.active = nil
		s.setModeLocked(model.ModeError)
	case model.ActionComplete:
		s.log.Info().Str("action", s.active.act.LogName()).Msg("action complete")
		s.bus.Emit(events.ActionCompleted, "scheduler", map[string]interface{}{"action": s.active.act.LogName()})
		s.active = nil
	default:
		if domeOpen != s.lastDomeOpen {
			s.active.act.NotifyDomeStatusChanged(domeOpen)
		}
	}
	s.lastDomeOpen = domeOpen
}
