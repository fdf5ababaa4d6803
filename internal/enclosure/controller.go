// Package enclosure implements the Enclosure Controller (spec.md §4.2): a
// supervisory state machine that reconciles the physical shutter with a
// desired state derived from mode, the scheduled dome window, and the
// Environment Monitor's last safety verdict, and that maintains the
// heartbeat watchdog liveness contract.
package enclosure

import (
	"errors"
	"sync"
	"time"

	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/shutterrpc"
	"github.com/obscore/supervisor/pkg/condwait"
	"github.com/rs/zerolog"
)

// DefaultStaleLimit is the fail-safe staleness horizon from spec.md §4.1/§8
// P1: the Enclosure must not ping the heartbeat if the Environment Monitor
// hasn't reported within this long.
const DefaultStaleLimit = 30 * time.Second

// ErrInErrorState is returned by RequestMode(Automatic) while the
// controller is in Error: the operator must cycle through Manual first
// (spec.md §4.2, §7).
var ErrInErrorState = errors.New("enclosure: in error state, reset via manual mode first")

// Shutter is the RPC surface the controller drives. Satisfied by
// *shutterrpc.Client; an interface here keeps the controller testable
// without a real socket.
type Shutter interface {
	Status() (shutterrpc.Status, error)
	Open() error
	Close() error
	ArmHeartbeat() error
	DisarmHeartbeat() error
	Ping() error
}

// VerdictSource is the Environment Monitor's read surface, satisfied by
// *environment.Monitor.
type VerdictSource interface {
	Verdict() model.SafetyVerdict
}

// Controller is the Enclosure Controller's long-running task.
type Controller struct {
	shutter Shutter
	env     VerdictSource
	bus     *events.Manager
	log     zerolog.Logger

	loopDelay  time.Duration
	staleLimit time.Duration

	mu                     sync.Mutex
	cond                   *sync.Cond
	mode                   model.OperationsMode
	window                 *model.DomeWindow
	lastStatus             shutterrpc.Status
	failureLogged          bool
	windowClearedForUnsafe bool

	stopped bool
	done    chan struct{}
}

// New constructs a Controller in Manual mode with no window installed.
func New(shutter Shutter, env VerdictSource, bus *events.Manager, loopDelay time.Duration, log zerolog.Logger) *Controller {
	c := &Controller{
		shutter:    shutter,
		env:        env,
		bus:        bus,
		log:        log.With().Str("component", "enclosure").Logger(),
		loopDelay:  loopDelay,
		staleLimit: DefaultStaleLimit,
		mode:       model.ModeManual,
		done:       make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetStaleLimit overrides the default staleness horizon. Implementers MAY
// make this configurable but MUST default to the fail-safe value (spec.md
// open question).
func (c *Controller) SetStaleLimit(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleLimit = d
}

// Start runs the reconciliation loop in its own goroutine.
func (c *Controller) Start() {
	go c.loop()
}

// Stop terminates the reconciliation loop.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
	<-c.done
}

func (c *Controller) loop() {
	defer close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stopped {
			return
		}
		c.reconcileLocked()
		if c.stopped {
			return
		}
		condwait.SleepInterruptible(c.cond, c.loopDelay)
	}
}

// Mode returns the controller's current OperationsMode.
func (c *Controller) Mode() model.OperationsMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status returns the last hardware status observed during reconciliation.
// Outside Automatic mode this reflects whatever was last queried and may
// be stale; callers needing a fresh read should rely on Mode()+Status()
// together as the scheduler does for dome_is_open (spec.md §4.3).
func (c *Controller) Status() shutterrpc.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// Window returns the currently installed dome window, or nil.
func (c *Controller) Window() *model.DomeWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// InstallWindow atomically installs a new dome window, replacing any
// existing one. Called by the Supervisor Facade on submit_schedule.
func (c *Controller) InstallWindow(w model.DomeWindow) {
	c.mu.Lock()
	c.window = &w
	c.windowClearedForUnsafe = false
	c.mu.Unlock()
	c.bus.Emit(events.DomeWindowInstalled, "enclosure", map[string]interface{}{
		"open_at":  w.OpenAt,
		"close_at": w.CloseAt,
	})
	c.cond.Broadcast()
}

// ClearWindow removes the dome window (spec.md §6 clear_dome_window). If
// the shutter is open, reconciliation on the next tick will command it
// closed since desired_open becomes false with no window.
func (c *Controller) ClearWindow() {
	c.mu.Lock()
	had := c.window != nil
	c.window = nil
	c.mu.Unlock()
	if had {
		c.bus.Emit(events.DomeWindowCleared, "enclosure", nil)
	}
	c.cond.Broadcast()
}

// RequestMode requests a transition to Automatic or Manual.
//
//   - Manual -> Automatic: arms the heartbeat; success sets Automatic,
//     failure sets Error.
//   - Automatic -> Manual: disarms the heartbeat; success sets Manual,
//     failure sets Error.
//   - Error -> Manual: always succeeds (the explicit operator reset).
//   - Error -> Automatic: rejected with ErrInErrorState; state unchanged.
//   - Manual -> Manual, Automatic -> Automatic: no-ops.
func (c *Controller) RequestMode(target model.OperationsMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.mode == target:
		return nil
	case c.mode == model.ModeError && target == model.ModeAutomatic:
		return ErrInErrorState
	case c.mode == model.ModeError && target == model.ModeManual:
		c.mode = model.ModeManual
		c.failureLogged = false
		c.log.Info().Msg("operator reset from error to manual")
	case c.mode == model.ModeManual && target == model.ModeAutomatic:
		if err := c.shutter.ArmHeartbeat(); err != nil {
			c.log.Error().Err(err).Msg("failed to arm heartbeat, entering error")
			c.mode = model.ModeError
			c.bus.Emit(events.EnclosureModeChanged, "enclosure", map[string]interface{}{"mode": string(model.ModeError)})
			return err
		}
		c.mode = model.ModeAutomatic
	case c.mode == model.ModeAutomatic && target == model.ModeManual:
		if err := c.shutter.DisarmHeartbeat(); err != nil {
			c.log.Error().Err(err).Msg("failed to disarm heartbeat, entering error")
			c.mode = model.ModeError
			c.bus.Emit(events.EnclosureModeChanged, "enclosure", map[string]interface{}{"mode": string(model.ModeError)})
			return err
		}
		c.mode = model.ModeManual
	default:
		return nil
	}

	c.bus.Emit(events.EnclosureModeChanged, "enclosure", map[string]interface{}{"mode": string(c.mode)})
	c.cond.Broadcast()
	return nil
}

// desiredOpen implements spec.md §4.2's desired-state function.
func desiredOpen(mode model.OperationsMode, window *model.DomeWindow, verdict model.SafetyVerdict, now time.Time, staleLimit time.Duration) bool {
	if mode != model.ModeAutomatic || window == nil {
		return false
	}
	if !window.Contains(now) {
		return false
	}
	if !verdict.Safe {
		return false
	}
	return now.Sub(verdict.LastUpdate) < staleLimit
}

// reconcileLocked performs one reconciliation tick. c.mu must be held.
func (c *Controller) reconcileLocked() {
	if c.mode != model.ModeAutomatic {
		return
	}

	status, err := c.shutter.Status()
	if err != nil {
		c.enterErrorLocked(err, "failed to query shutter status")
		return
	}
	c.lastStatus = status

	if status == shutterrpc.StatusTimeout {
		c.log.Error().Msg("shutter reported heartbeat timeout, entering error")
		c.mode = model.ModeError
		c.bus.Emit(events.EnclosureModeChanged, "enclosure", map[string]interface{}{"mode": string(model.ModeError), "reason": "heartbeat_timeout"})
		return
	}

	now := time.Now()
	verdict := c.env.Verdict()
	want := desiredOpen(c.mode, c.window, verdict, now, c.staleLimit)

	switch {
	case want && status == shutterrpc.StatusClosed:
		if err := c.shutter.Open(); err != nil {
			c.enterErrorLocked(err, "failed to open shutter")
			return
		}
		c.lastStatus = shutterrpc.StatusMoving
		c.bus.Emit(events.EnclosureStatusChanged, "enclosure", map[string]interface{}{"status": string(shutterrpc.StatusMoving)})
		// Re-read the status so a move the daemon has already finished is
		// reported now; otherwise it stays Moving until a later tick.
		if s, err := c.shutter.Status(); err == nil && s != shutterrpc.StatusMoving {
			c.lastStatus = s
			c.bus.Emit(events.EnclosureStatusChanged, "enclosure", map[string]interface{}{"status": string(s)})
		}
	case !want && status == shutterrpc.StatusOpen:
		if err := c.shutter.Close(); err != nil {
			c.enterErrorLocked(err, "failed to close shutter")
			return
		}
		c.lastStatus = shutterrpc.StatusMoving
		c.bus.Emit(events.EnclosureStatusChanged, "enclosure", map[string]interface{}{"status": string(shutterrpc.StatusMoving)})
		if s, err := c.shutter.Status(); err == nil && s != shutterrpc.StatusMoving {
			c.lastStatus = s
			c.bus.Emit(events.EnclosureStatusChanged, "enclosure", map[string]interface{}{"status": string(s)})
		}
	case want == (status == shutterrpc.StatusOpen):
		if !verdict.Stale(now, c.staleLimit) {
			if err := c.shutter.Ping(); err != nil {
				c.enterErrorLocked(err, "failed to ping heartbeat")
				return
			}
		}
	}

	c.maybeClearWindowLocked(now, verdict)
	c.failureLogged = false
}

func (c *Controller) maybeClearWindowLocked(now time.Time, verdict model.SafetyVerdict) {
	if c.window == nil {
		return
	}
	if c.window.Elapsed(now) {
		c.window = nil
		c.bus.Emit(events.DomeWindowCleared, "enclosure", map[string]interface{}{"reason": "elapsed"})
		return
	}
	if !verdict.Safe && !now.Before(c.window.OpenAt) && !c.windowClearedForUnsafe {
		c.windowClearedForUnsafe = true
		c.window = nil
		c.bus.Emit(events.DomeWindowCleared, "enclosure", map[string]interface{}{"reason": "unsafe"})
	}
}

func (c *Controller) enterErrorLocked(err error, msg string) {
	c.mode = model.ModeError
	if !c.failureLogged {
		c.log.Error().Err(err).Msg(msg)
		c.failureLogged = true
	}
	c.bus.Emit(events.EnclosureModeChanged, "enclosure", map[string]interface{}{"mode": string(model.ModeError), "error": err.Error()})
}
