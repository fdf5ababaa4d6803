// Package facade implements the Supervisor Facade (spec.md §6): the
// transport boundary that exposes submit_schedule, the mode-change
// operations, clear_dome_window, stop_telescope, status, and the
// pipeline ingress operations over HTTP, enforcing the allow-list
// access control spec.md §6 requires of mutating operations.
package facade

import (
	"time"

	"github.com/obscore/supervisor/internal/action"
	"github.com/obscore/supervisor/internal/catalog"
	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/healthself"
	"github.com/obscore/supervisor/internal/logging"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/schedule"
	"github.com/obscore/supervisor/internal/shutterrpc"
	"github.com/rs/zerolog"
)

// Enclosure is the Enclosure Controller surface the Facade drives,
// satisfied by *enclosure.Controller.
type Enclosure interface {
	Mode() model.OperationsMode
	Status() shutterrpc.Status
	Window() *model.DomeWindow
	RequestMode(target model.OperationsMode) error
	InstallWindow(w model.DomeWindow)
	ClearWindow()
}

// Scheduler is the Action Scheduler surface the Facade drives, satisfied
// by *scheduler.Scheduler.
type Scheduler interface {
	Mode() model.OperationsMode
	RequestMode(target model.OperationsMode) error
	Enqueue(typeKey string, act action.Runnable)
	Abort()
	NotifyFrame(headers map[string]interface{}) []model.HeaderCard
	NotifyGuideProfile(headers map[string]interface{}, x, y []float64) []model.HeaderCard
	Status() model.ScheduleStatus
}

// Facade wires the three core components plus the ambient observability
// surfaces (event bus, log store, self health) behind the §6 RPC table.
type Facade struct {
	enclosure Enclosure
	scheduler Scheduler
	ingest    *schedule.Ingest
	registry  *catalog.Registry
	site      string
	bus       *events.Manager
	store     *logging.Store
	health    *healthself.Reporter

	controlMachines  map[string]struct{}
	pipelineMachines map[string]struct{}

	log zerolog.Logger
}

// New constructs a Facade. controlMachines gates the mutating control
// operations; pipelineMachines gates notify_frame/notify_guide_profile
// (spec.md §6 config "pipeline-notifier machines"). Either list empty
// means nothing from that list is ever authorized, not "allow all".
func New(
	enclosure Enclosure,
	scheduler Scheduler,
	ingest *schedule.Ingest,
	registry *catalog.Registry,
	site string,
	bus *events.Manager,
	store *logging.Store,
	health *healthself.Reporter,
	controlMachines []string,
	pipelineMachines []string,
	log zerolog.Logger,
) *Facade {
	return &Facade{
		enclosure:        enclosure,
		scheduler:        scheduler,
		ingest:           ingest,
		registry:         registry,
		site:             site,
		bus:              bus,
		store:            store,
		health:           health,
		controlMachines:  toSet(controlMachines),
		pipelineMachines: toSet(pipelineMachines),
		log:              log.With().Str("component", "facade").Logger(),
	}
}

func toSet(hosts []string) map[string]struct{} {
	s := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		s[h] = struct{}{}
	}
	return s
}

// statusResponse is the status() snapshot (spec.md §3, §6), folding in
// the Scheduler's ScheduleStatus, the Enclosure's mode/hardware status/
// window, and this process's own health — three distinct signals the
// operator reads together.
type statusResponse struct {
	Scheduler  scheduleStatusDTO   `json:"scheduler"`
	Enclosure  enclosureStatusDTO  `json:"enclosure"`
	Health     healthself.Snapshot `json:"health"`
	ObservedAt time.Time           `json:"observed_at"`
}

type scheduleStatusDTO struct {
	Mode          model.OperationsMode `json:"mode"`
	RequestedMode model.OperationsMode `json:"requested_mode"`
	StatusUpdated time.Time            `json:"status_updated"`
	Schedule      []scheduledActionDTO `json:"schedule"`
}

type scheduledActionDTO struct {
	Name       string   `json:"name"`
	TaskLabels []string `json:"task_labels"`
}

type enclosureStatusDTO struct {
	Mode      model.OperationsMode `json:"mode"`
	Status    shutterrpc.Status    `json:"status"`
	HasWindow bool                 `json:"has_window"`
	Window    *domeWindowDTO       `json:"window,omitempty"`
}

type domeWindowDTO struct {
	OpenAt  time.Time `json:"open_at"`
	CloseAt time.Time `json:"close_at"`
}

func (f *Facade) buildStatus() statusResponse {
	schedStatus := f.scheduler.Status()
	rows := make([]scheduledActionDTO, 0, len(schedStatus.Schedule))
	for _, r := range schedStatus.Schedule {
		rows = append(rows, scheduledActionDTO{Name: r.Name, TaskLabels: r.TaskLabels})
	}

	var windowDTO *domeWindowDTO
	window := f.enclosure.Window()
	if window != nil {
		windowDTO = &domeWindowDTO{OpenAt: window.OpenAt, CloseAt: window.CloseAt}
	}

	snap, err := f.health.Collect()
	if err != nil {
		f.log.Warn().Err(err).Msg("failed to collect self health for status()")
	}

	return statusResponse{
		Scheduler: scheduleStatusDTO{
			Mode:          schedStatus.Mode,
			RequestedMode: schedStatus.RequestedMode,
			StatusUpdated: schedStatus.StatusUpdated,
			Schedule:      rows,
		},
		Enclosure: enclosureStatusDTO{
			Mode:      f.enclosure.Mode(),
			Status:    f.enclosure.Status(),
			HasWindow: window != nil,
			Window:    windowDTO,
		},
		Health:     snap,
		ObservedAt: time.Now(),
	}
}
