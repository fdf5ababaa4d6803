package catalog

import (
	"time"

	"github.com/obscore/supervisor/internal/action"
	"github.com/obscore/supervisor/internal/model"
	"github.com/rs/zerolog"
)

// ParkDriver is the per-instrument hook that actually slews the mount to
// its park position. The concrete mount RPC wrapper is out of scope
// (spec.md §1); sites supply it by constructing their own Registry entry
// that closes over a real driver, or by calling NewParkTelescopeWithDriver
// directly.
type ParkDriver func() error

// ParkTelescope is the Scheduler's implicit queue-drain action (spec.md
// §4.3 step 4): enqueued once whenever the active slot and queue both go
// empty while the supervisor isn't already idle, so the mount never sits
// unparked overnight.
type ParkTelescope struct {
	*action.Base
	driver ParkDriver
}

// NewParkTelescopeWithDriver builds a ParkTelescope that calls driver to
// perform the actual park.
func NewParkTelescopeWithDriver(site string, driver ParkDriver, log zerolog.Logger) *ParkTelescope {
	p := &ParkTelescope{driver: driver}
	p.Base = action.NewBase("park_telescope", "park-telescope", site, p, log)
	return p
}

func newParkTelescope(site string, config map[string]interface{}, log zerolog.Logger, driver ParkDriver) *ParkTelescope {
	return NewParkTelescopeWithDriver(site, driver, log)
}

// ValidateConfig: ParkTelescope takes no action-specific configuration.
func (p *ParkTelescope) ValidateConfig(map[string]interface{}) []action.Violation { return nil }

func (p *ParkTelescope) TaskLabels() []string { return []string{"park telescope"} }

func (p *ParkTelescope) Run(rt *action.Runtime) {
	if p.driver != nil {
		if err := p.driver(); err != nil {
			rt.Log().Error().Err(err).Msg("park telescope driver failed")
			rt.SetStatus(model.ActionError)
			return
		}
	}
	// Give the mount a moment to settle before declaring completion;
	// abortable like any other wait per the runtime contract.
	rt.WaitUntilOrAborted(time.Now().Add(2*time.Second), 10*time.Second)
	rt.SetStatus(model.ActionComplete)
}

func (p *ParkTelescope) DomeStatusChanged(bool) {}

func (p *ParkTelescope) ReceivedFrame(map[string]interface{}) []model.HeaderCard { return nil }

func (p *ParkTelescope) ReceivedGuideProfile(map[string]interface{}, []float64, []float64) []model.HeaderCard {
	return nil
}
