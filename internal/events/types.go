package events

import "time"

// EventType identifies the kind of event flowing through the Bus.
type EventType string

const (
	EnvironmentSafe        EventType = "environment_safe"
	EnvironmentUnsafe      EventType = "environment_unsafe"
	EnclosureStatusChanged EventType = "enclosure_status_changed"
	EnclosureModeChanged   EventType = "enclosure_mode_changed"
	DomeWindowInstalled    EventType = "dome_window_installed"
	DomeWindowCleared      EventType = "dome_window_cleared"
	SchedulerModeChanged   EventType = "scheduler_mode_changed"
	ActionStarted          EventType = "action_started"
	ActionCompleted        EventType = "action_completed"
	ActionErrored          EventType = "action_errored"
	ErrorOccurred          EventType = "error_occurred"
)

// Event represents a single occurrence published on the Bus.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
