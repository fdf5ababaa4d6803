package facade

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the chi.Mux exposing every operation in spec.md §6's
// table plus the websocket status stream. Mounted directly by
// cmd/supervisord; access control is applied per-group, not globally,
// since status() and the stream are read-only and carry no allow-list
// requirement.
func (f *Facade) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/v1/status", f.HandleStatus)
	r.Get("/v1/logs/recent", f.HandleRecentLogs)
	r.Handle("/v1/status/stream", newStatusStreamHandler(f))

	r.Group(func(r chi.Router) {
		r.Use(f.requireControlMachine)
		r.Post("/v1/schedule", f.HandleSubmitSchedule)
		r.Post("/v1/dome/mode", f.HandleRequestDomeMode)
		r.Post("/v1/scheduler/mode", f.HandleRequestSchedulerMode)
		r.Post("/v1/dome/window/clear", f.HandleClearDomeWindow)
		r.Post("/v1/telescope/stop", f.HandleStopTelescope)
	})

	r.Group(func(r chi.Router) {
		r.Use(f.requirePipelineMachine)
		r.Post("/v1/pipeline/frame", f.HandleNotifyFrame)
		r.Post("/v1/pipeline/guide-profile", f.HandleNotifyGuideProfile)
	})

	return r
}
