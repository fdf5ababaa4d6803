package facade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/obscore/supervisor/internal/enclosure"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/scheduler"
)

type errorBody struct {
	Error   FailureCode `json:"error"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, code FailureCode, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// HandleSubmitSchedule implements submit_schedule (spec.md §6): ingest
// validates the descriptor, then both the Enclosure and the Scheduler
// must currently be Automatic, or nothing is mutated (spec.md scenario
// S3). On success the window (if any) is installed and the actions are
// enqueued in submission order.
func (f *Facade) HandleSubmitSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := readAll(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, InvalidSchedule, err.Error())
		return
	}

	desc, err := parseDescriptor(body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, InvalidSchedule, err.Error())
		return
	}

	plan, err := f.ingest.Resolve(desc, time.Now())
	if err != nil {
		writeFailure(w, http.StatusBadRequest, InvalidSchedule, err.Error())
		return
	}

	if f.enclosure.Mode() != model.ModeAutomatic {
		writeFailure(w, http.StatusConflict, DomeNotAutomatic, "enclosure is not in automatic mode")
		return
	}
	if f.scheduler.Mode() != model.ModeAutomatic {
		writeFailure(w, http.StatusConflict, TelescopeNotAutomatic, "scheduler is not in automatic mode")
		return
	}

	if plan.HasWindow {
		f.enclosure.InstallWindow(plan.Window)
	}
	for _, pa := range plan.Actions {
		act, err := f.registry.Build(pa.TypeKey, f.site, pa.Config, f.log)
		if err != nil {
			// Ingest already validated every type against the same
			// registry; a failure here would mean the registry changed
			// between Resolve and Build, which cannot happen within one
			// request.
			writeFailure(w, http.StatusInternalServerError, GenericFailure, err.Error())
			return
		}
		f.scheduler.Enqueue(pa.TypeKey, act)
	}

	writeJSON(w, http.StatusOK, f.buildStatus())
}

type modeRequest struct {
	Mode model.OperationsMode `json:"mode"`
}

// HandleRequestDomeMode implements request_dome_mode.
func (f *Facade) HandleRequestDomeMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, GenericFailure, "malformed mode request")
		return
	}
	if err := f.enclosure.RequestMode(req.Mode); err != nil {
		if errors.Is(err, enclosure.ErrInErrorState) {
			writeFailure(w, http.StatusConflict, InErrorState, err.Error())
			return
		}
		writeFailure(w, http.StatusInternalServerError, GenericFailure, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f.buildStatus())
}

// HandleRequestSchedulerMode implements request_scheduler_mode.
func (f *Facade) HandleRequestSchedulerMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, GenericFailure, "malformed mode request")
		return
	}
	if err := f.scheduler.RequestMode(req.Mode); err != nil {
		if errors.Is(err, scheduler.ErrInErrorState) {
			writeFailure(w, http.StatusConflict, InErrorState, err.Error())
			return
		}
		writeFailure(w, http.StatusInternalServerError, GenericFailure, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f.buildStatus())
}

// HandleClearDomeWindow implements clear_dome_window(): idempotent
// (spec.md §8 R2), never fails.
func (f *Facade) HandleClearDomeWindow(w http.ResponseWriter, r *http.Request) {
	f.enclosure.ClearWindow()
	writeJSON(w, http.StatusOK, f.buildStatus())
}

// HandleStopTelescope implements stop_telescope(): aborts the active
// action and clears the queue, never fails.
func (f *Facade) HandleStopTelescope(w http.ResponseWriter, r *http.Request) {
	f.scheduler.Abort()
	writeJSON(w, http.StatusOK, f.buildStatus())
}

// HandleStatus implements status().
func (f *Facade) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.buildStatus())
}

const defaultRecentLogLimit = 100

// HandleRecentLogs serves the structured event log's recent-activity
// display (spec.md §2 "Logging & Status fan-out", SPEC_FULL §3.7): the
// `limit` query parameter bounds the row count, defaulting to 100.
func (f *Facade) HandleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := f.store.Recent(limit)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, GenericFailure, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type frameRequest struct {
	Headers map[string]interface{} `json:"headers"`
}

type guideProfileRequest struct {
	Headers  map[string]interface{} `json:"headers"`
	ProfileX []float64              `json:"profile_x"`
	ProfileY []float64              `json:"profile_y"`
}

type headerCardsResponse struct {
	Cards []model.HeaderCard `json:"cards"`
}

// HandleNotifyFrame implements notify_frame(headers): routes to the
// active action, returning whatever extra header cards it hands back
// (spec.md §8 B3: dropped silently if nothing is active).
func (f *Facade) HandleNotifyFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, GenericFailure, "malformed frame payload")
		return
	}
	cards := f.scheduler.NotifyFrame(req.Headers)
	writeJSON(w, http.StatusOK, headerCardsResponse{Cards: cards})
}

// HandleNotifyGuideProfile implements notify_guide_profile(headers,x,y).
func (f *Facade) HandleNotifyGuideProfile(w http.ResponseWriter, r *http.Request) {
	var req guideProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, GenericFailure, "malformed guide profile payload")
		return
	}
	cards := f.scheduler.NotifyGuideProfile(req.Headers, req.ProfileX, req.ProfileY)
	writeJSON(w, http.StatusOK, headerCardsResponse{Cards: cards})
}
