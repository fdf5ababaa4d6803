package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Rotator drives the nightly archive job on a cron schedule: each firing
// uploads the current event log file through the archiver. It does not
// close or reset the store; the table keeps every row for the life of the
// process.
type Rotator struct {
	cron     *cron.Cron
	store    *Store
	archiver *Archiver
	logPath  string
	log      zerolog.Logger
}

// NewRotator builds a Rotator that runs spec (standard five-field cron
// syntax) against store, uploading to archiver under a date-stamped key
// each time it fires.
func NewRotator(spec string, store *Store, archiver *Archiver, log zerolog.Logger) (*Rotator, error) {
	r := &Rotator{
		cron:     cron.New(),
		store:    store,
		archiver: archiver,
		logPath:  store.Path(),
		log:      log.With().Str("component", "log_rotator").Logger(),
	}
	if _, err := r.cron.AddFunc(spec, r.rotate); err != nil {
		return nil, fmt.Errorf("logging: invalid archive_cron expression %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the cron scheduler in its own goroutine.
func (r *Rotator) Start() {
	r.cron.Start()
}

// Stop halts the cron scheduler and waits for any in-flight job to finish.
func (r *Rotator) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Rotator) rotate() {
	key := fmt.Sprintf("event-log/%s.sqlite", time.Now().UTC().Format("2006-01-02T150405Z"))
	ctx := context.Background()
	if err := r.archiver.ArchiveFile(ctx, r.logPath, key); err != nil {
		r.log.Error().Err(err).Msg("event log rotation failed to archive")
	}
}
