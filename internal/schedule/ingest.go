// Package schedule implements Schedule Ingest (spec.md §4, §6): validates
// a nightly schedule descriptor and resolves it into a dome window plus
// an ordered action list, without mutating any core component — the
// Supervisor Facade does the atomic install/enqueue once ingest succeeds.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/obscore/supervisor/internal/catalog"
	"github.com/obscore/supervisor/internal/model"
	"github.com/rs/zerolog"
)

// SiteLocation is the fixed per-process site geometry used to resolve
// "auto" dome times to sunset/sunrise (spec.md §6 config "site
// latitude/longitude/elevation").
type SiteLocation struct {
	Latitude   float64
	Longitude  float64
	ElevationM float64
}

// Descriptor is the wire shape submitted to submit_schedule (spec.md §6).
type Descriptor struct {
	Night   string           `json:"night"`
	Dome    *DomeDescriptor  `json:"dome,omitempty"`
	Actions []ActionEntry    `json:"actions"`
}

// DomeDescriptor holds the raw open/close fields: either the literal
// string "auto" or an RFC 3339 instant.
type DomeDescriptor struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// ActionEntry is one element of the "actions" array: a catalog type key
// plus whatever additional keys that catalog entry's own schema expects.
type ActionEntry struct {
	Type   string
	Config map[string]interface{}
}

// UnmarshalJSON captures "type" into Type and every other key into
// Config, since each action's remaining keys are validated by its own
// schema, not a fixed struct (spec.md §6: "remaining keys are validated
// by that action's own schema").
func (e *ActionEntry) UnmarshalJSON(data []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, _ := raw["type"].(string)
	e.Type = t
	delete(raw, "type")
	e.Config = raw
	return nil
}

// PlannedAction is one validated action entry ready for the catalog to
// build, in submission order.
type PlannedAction struct {
	TypeKey string
	Config  map[string]interface{}
}

// Plan is the resolved output of a successful ingest: the dome window (if
// the descriptor carried one) and the ordered action list.
type Plan struct {
	HasWindow bool
	Window    model.DomeWindow
	Actions   []PlannedAction
}

// ValidationError aggregates every schema violation found, matching
// spec.md §6's "InvalidSchedule" failure code: one reject, not a
// fail-fast on the first problem, so the operator sees everything wrong
// with a descriptor at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("invalid schedule: %s", e.Violations[0])
	}
	return fmt.Sprintf("invalid schedule: %d violations (first: %s)", len(e.Violations), e.Violations[0])
}

// Ingest validates and resolves schedule descriptors for one site.
type Ingest struct {
	site           SiteLocation
	registry       *catalog.Registry
	requireTonight bool
}

// New constructs an Ingest. requireTonight mirrors the config flag of the
// same name (spec.md §6).
func New(site SiteLocation, registry *catalog.Registry, requireTonight bool) *Ingest {
	return &Ingest{site: site, registry: registry, requireTonight: requireTonight}
}

// Parse unmarshals raw JSON into a Descriptor.
func Parse(raw []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("schedule: malformed descriptor: %w", err)
	}
	return &d, nil
}

// Resolve validates desc against now and the configured site, returning a
// Plan or an aggregated *ValidationError. now is injected so sunset/
// sunrise resolution and the require_tonight check are deterministic
// under test.
func (i *Ingest) Resolve(desc *Descriptor, now time.Time) (*Plan, error) {
	var violations []string

	night, err := time.Parse("2006-01-02", desc.Night)
	if err != nil {
		violations = append(violations, fmt.Sprintf("night: %q does not parse as YYYY-MM-DD", desc.Night))
	}

	if err == nil && i.requireTonight {
		tonight := observingNight(now, i.site.Longitude)
		if !night.Equal(tonight) {
			violations = append(violations, fmt.Sprintf("night: %q is not the current observing night", desc.Night))
		}
	}

	var plan Plan
	if err == nil && desc.Dome != nil {
		window, windowViolations := i.resolveWindow(desc.Dome, night)
		violations = append(violations, windowViolations...)
		if len(windowViolations) == 0 {
			plan.HasWindow = true
			plan.Window = window
		}
	}

	for idx, entry := range desc.Actions {
		if entry.Type == "" {
			violations = append(violations, fmt.Sprintf("actions[%d]: missing type", idx))
			continue
		}
		act, buildErr := i.registry.Build(entry.Type, "", entry.Config, zerolog.Nop())
		if buildErr != nil {
			violations = append(violations, fmt.Sprintf("actions[%d]: %s", idx, buildErr))
			continue
		}
		for _, v := range act.ValidateConfig(entry.Config) {
			violations = append(violations, fmt.Sprintf("actions[%d] (%s): %s", idx, entry.Type, v))
		}
		plan.Actions = append(plan.Actions, PlannedAction{TypeKey: entry.Type, Config: entry.Config})
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return &plan, nil
}

// resolveWindow turns a DomeDescriptor into a model.DomeWindow, resolving
// "auto" to sunset/sunrise and validating that absolute instants fall
// between local noon of night and local noon of the next day (spec.md
// §6).
func (i *Ingest) resolveWindow(d *DomeDescriptor, night time.Time) (model.DomeWindow, []string) {
	var violations []string

	lowerBound := localNoon(night, i.site.Longitude)
	upperBound := lowerBound.Add(24 * time.Hour)

	open, openErr := i.resolveInstant(d.Open, night, true)
	if openErr != "" {
		violations = append(violations, "dome.open: "+openErr)
	}
	closeAt, closeErr := i.resolveInstant(d.Close, night, false)
	if closeErr != "" {
		violations = append(violations, "dome.close: "+closeErr)
	}
	if len(violations) > 0 {
		return model.DomeWindow{}, violations
	}

	if open.Before(lowerBound) || open.After(upperBound) {
		violations = append(violations, fmt.Sprintf("dome.open: %s falls outside the observing night", open.Format(time.RFC3339)))
	}
	if closeAt.Before(lowerBound) || closeAt.After(upperBound) {
		violations = append(violations, fmt.Sprintf("dome.close: %s falls outside the observing night", closeAt.Format(time.RFC3339)))
	}
	if len(violations) > 0 {
		return model.DomeWindow{}, violations
	}

	window := model.DomeWindow{OpenAt: open, CloseAt: closeAt}
	if !window.Valid() {
		return model.DomeWindow{}, []string{"dome: open must precede close"}
	}
	return window, nil
}

func (i *Ingest) resolveInstant(raw string, night time.Time, isSunset bool) (time.Time, string) {
	if raw == "auto" {
		if isSunset {
			sunset, _ := SunTimes(i.site, night)
			return sunset, ""
		}
		// The night ends at the next calendar day's sunrise.
		_, sunrise := SunTimes(i.site, night.AddDate(0, 0, 1))
		return sunrise, ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Sprintf("%q is neither \"auto\" nor a valid RFC3339 instant", raw)
	}
	return t.UTC(), ""
}

// observingNight returns the date (at 00:00 UTC) of the day on which local
// noon at longitude most recently passed relative to now, per spec.md §6's
// definition of "the current observing night".
func observingNight(now time.Time, longitude float64) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if now.Before(localNoon(day, longitude)) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// localNoon approximates local solar noon for a date given a longitude,
// used only as the lower bound of the "falls within the observing night"
// validation window (spec.md §6); precision to the minute is immaterial
// since the check is a day-scale sanity bound, not a safety interlock.
func localNoon(night time.Time, longitude float64) time.Time {
	offset := time.Duration(longitude / 15.0 * float64(time.Hour))
	return time.Date(night.Year(), night.Month(), night.Day(), 12, 0, 0, 0, time.UTC).Add(-offset)
}
