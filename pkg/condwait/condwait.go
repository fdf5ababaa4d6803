// Package condwait provides a small cooperative wait helper shared by the
// Enclosure Controller and Action Scheduler loops and by the action
// runtime: wait until a deadline passes or a
// predicate becomes true, waking early when the owning component broadcasts
// its condition variable.
package condwait

import (
	"sync"
	"time"
)

// WaitUntilOrAborted sleeps on cond until either target has passed or
// aborted() returns true, whichever comes first. The caller must hold
// cond.L when calling; WaitUntilOrAborted releases it while sleeping and
// re-acquires it before returning, matching sync.Cond.Wait's contract.
//
// It returns true iff the deadline was reached (the wait was not cut short
// by abort). checkInterval bounds how long an abort can take to be noticed
// in the absence of an explicit Broadcast: the wait re-evaluates aborted()
// at least that often even with no wake-up.
func WaitUntilOrAborted(cond *sync.Cond, target time.Time, aborted func() bool, checkInterval time.Duration) bool {
	for {
		if aborted() {
			return false
		}
		remaining := time.Until(target)
		if remaining <= 0 {
			return true
		}

		wait := remaining
		if checkInterval > 0 && wait > checkInterval {
			wait = checkInterval
		}
		waitOnCond(cond, wait)
	}
}

// SleepInterruptible blocks for at most d, or until cond is
// Broadcast/Signal-ed, whichever comes first. Unlike WaitUntilOrAborted it
// has no abort predicate: it is the primitive behind every long-running
// task's "loop_delay sleep that an external event can shortcut" (spec.md
// §5) — the Enclosure Controller and Action Scheduler both use it for
// their main ticks; the Environment Monitor polls on a time.Ticker
// instead. The caller must hold cond.L.
func SleepInterruptible(cond *sync.Cond, d time.Duration) {
	waitOnCond(cond, d)
}

// waitOnCond blocks on cond for at most d, or until Broadcast/Signal fires.
// cond.L must be held on entry and is held again on return.
func waitOnCond(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		// Lock/unlock around Broadcast so the timer can't fire and be
		// missed in the window before the caller's cond.Wait() actually
		// parks: acquiring cond.L here blocks until Wait() releases it.
		cond.L.Lock()
		cond.L.Unlock()
		cond.Broadcast()
	})
	defer timer.Stop()
	cond.Wait()
}
