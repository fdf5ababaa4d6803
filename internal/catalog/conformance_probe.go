package catalog

import (
	"fmt"
	"sync"
	"time"

	"github.com/obscore/supervisor/internal/action"
	"github.com/obscore/supervisor/internal/model"
	"github.com/rs/zerolog"
)

// ConformanceProbe is a reference Action exercising every operation of
// the Action Runtime Contract (spec.md §4.4): it is not a real observing
// action but the conformance case the spec requires the core to support
// "without changing the core" (spec.md §1) — autofocus/flats/acquisition
// are written the same shape, just with real hardware calls in Run.
//
// Config keys:
//   "wait_ms"     int,  default 0   — how long Run waits before completing
//   "fail"        bool, default false — if true, Run ends in Error
//   "frame_cards" bool, default false — if true, ReceivedFrame echoes a
//                 header card back so callers can assert the routing path
type ConformanceProbe struct {
	*action.Base

	waitFor    time.Duration
	fail       bool
	frameCards bool

	mu         sync.Mutex
	domeEvents []bool
	framesSeen int
	guidesSeen int
}

// NewConformanceProbe satisfies the Factory signature for
// "conformance_probe".
func NewConformanceProbe(site string, config map[string]interface{}, log zerolog.Logger) action.Runnable {
	p := &ConformanceProbe{}
	p.Base = action.NewBase("conformance_probe", "conformance-probe", site, p, log)

	if ms, ok := config["wait_ms"]; ok {
		p.waitFor = time.Duration(toInt(ms)) * time.Millisecond
	}
	if f, ok := config["fail"].(bool); ok {
		p.fail = f
	}
	if f, ok := config["frame_cards"].(bool); ok {
		p.frameCards = f
	}
	return p
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// ValidateConfig rejects a negative wait_ms; every other key is optional.
func (p *ConformanceProbe) ValidateConfig(config map[string]interface{}) []action.Violation {
	var violations []action.Violation
	if ms, ok := config["wait_ms"]; ok {
		if toInt(ms) < 0 {
			violations = append(violations, action.Violation{Field: "wait_ms", Message: "must be non-negative"})
		}
	}
	return violations
}

func (p *ConformanceProbe) TaskLabels() []string {
	return []string{fmt.Sprintf("conformance probe (wait=%s)", p.waitFor)}
}

func (p *ConformanceProbe) Run(rt *action.Runtime) {
	if p.waitFor > 0 {
		rt.WaitUntilOrAborted(time.Now().Add(p.waitFor), time.Second)
	}
	if rt.Aborted() {
		rt.SetStatus(model.ActionError)
		return
	}
	if p.fail {
		rt.SetStatus(model.ActionError)
		return
	}
	rt.SetStatus(model.ActionComplete)
}

func (p *ConformanceProbe) DomeStatusChanged(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domeEvents = append(p.domeEvents, open)
}

func (p *ConformanceProbe) ReceivedFrame(headers map[string]interface{}) []model.HeaderCard {
	p.mu.Lock()
	p.framesSeen++
	p.mu.Unlock()
	if !p.frameCards {
		return nil
	}
	return []model.HeaderCard{{Key: "PROBEFRM", Value: p.framesSeen}}
}

func (p *ConformanceProbe) ReceivedGuideProfile(headers map[string]interface{}, x, y []float64) []model.HeaderCard {
	p.mu.Lock()
	p.guidesSeen++
	p.mu.Unlock()
	return nil
}

// DomeEvents returns a copy of the observed dome_status_changed sequence,
// for conformance assertions.
func (p *ConformanceProbe) DomeEvents() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.domeEvents))
	copy(out, p.domeEvents)
	return out
}

// FramesSeen returns how many notify_processed_frame callbacks reached
// this probe.
func (p *ConformanceProbe) FramesSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesSeen
}

// GuidesSeen returns how many notify_guide_profile callbacks reached this
// probe.
func (p *ConformanceProbe) GuidesSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guidesSeen
}
