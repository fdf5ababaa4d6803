// Package logging implements the structured event log (spec.md §2
// "Logging & Status fan-out"): every event the Bus carries is recorded to
// a per-run sqlite table, queryable by the Facade for a recent-activity
// display, and optionally archived to S3-compatible object storage.
package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/obscore/supervisor/internal/events"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         TEXT NOT NULL,
	event_type TEXT NOT NULL,
	module     TEXT NOT NULL,
	data       TEXT NOT NULL
);
`

// Store is a queryable, append-only record of every event emitted on the
// Bus during the current run. It is recreated fresh at each startup — no
// row is ever read back from a previous process, so this is an
// observability aid, not persistent domain state (spec.md §4 Non-goals).
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates (overwriting any stale file left by a previous crash) the
// sqlite-backed event log at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	// A stale file from an earlier run would otherwise mix its rows with
	// this run's; the "fresh each run" contract means we own this file.
	_ = os.Remove(path)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("logging: failed to open event log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("logging: failed to ping event log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("logging: failed to create event_log table: %w", err)
	}

	return &Store{db: db, path: path, log: log.With().Str("component", "logging").Logger()}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location of the event log file, used by the
// Archiver to upload it whole.
func (s *Store) Path() string {
	return s.path
}

// Record inserts one event as a row. Failures are logged, not returned,
// because the log store observes the system — it must never be the
// reason a safety-critical operation fails (mirrors the Environment
// Monitor's "log and continue" posture on a failed poll).
func (s *Store) Record(e *events.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", string(e.Type)).Msg("failed to marshal event data")
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO event_log (ts, event_type, module, data) VALUES (?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Type), e.Module, string(data),
	)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", string(e.Type)).Msg("failed to record event")
	}
}

// Entry is one row as returned by Recent.
type Entry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// Recent returns up to limit of the most recently recorded events,
// newest first, for the Facade's recent-log display.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, event_type, module, data FROM event_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to query recent events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			tsStr   string
			rawData string
		)
		if err := rows.Scan(&e.ID, &tsStr, &e.EventType, &e.Module, &rawData); err != nil {
			return nil, fmt.Errorf("logging: failed to scan event row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("logging: failed to parse event timestamp: %w", err)
		}
		e.Timestamp = ts
		if err := json.Unmarshal([]byte(rawData), &e.Data); err != nil {
			return nil, fmt.Errorf("logging: failed to unmarshal event data: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AttachToBus subscribes Record to every event type the system emits,
// matching the teacher's convention of one component quietly shadowing
// everything the Bus carries.
func (s *Store) AttachToBus(bus *events.Bus) {
	for _, t := range trackedEventTypes {
		bus.Subscribe(t, func(e *events.Event) { s.Record(e) })
	}
}

var trackedEventTypes = []events.EventType{
	events.EnvironmentSafe,
	events.EnvironmentUnsafe,
	events.EnclosureStatusChanged,
	events.EnclosureModeChanged,
	events.DomeWindowInstalled,
	events.DomeWindowCleared,
	events.SchedulerModeChanged,
	events.ActionStarted,
	events.ActionCompleted,
	events.ActionErrored,
	events.ErrorOccurred,
}
