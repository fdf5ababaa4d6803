package facade

import (
	"context"
	"net/http"

	"github.com/obscore/supervisor/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// statusStreamBuffer bounds how many pending change notifications a slow
// websocket client can queue before the oldest is dropped — the client
// always ends up caught up to the latest status(), never stuck replaying
// a long backlog of superseded snapshots.
const statusStreamBuffer = 8

// streamedEventTypes are the events whose arrival re-pushes a status()
// snapshot to subscribers of /v1/status/stream (spec.md §2 "Logging &
// Status fan-out").
var streamedEventTypes = []events.EventType{
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
}

// StatusStreamHandler serves the live status() stream over a websocket
// connection, one push per observed state-changing event.
type StatusStreamHandler struct {
	facade *Facade
	log    zerolog.Logger
}

func newStatusStreamHandler(f *Facade) *StatusStreamHandler {
	return &StatusStreamHandler{facade: f, log: f.log.With().Str("endpoint", "status_stream").Logger()}
}

// enqueueEvent appends e to ch, dropping the oldest queued event first if
// ch is full, so a slow subscriber never blocks the event bus.
func (h *StatusStreamHandler) enqueueEvent(ch chan *events.Event, e *events.Event) {
	select {
	case ch <- e:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *StatusStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := make(chan *events.Event, statusStreamBuffer)
	var subs []events.Subscription
	for _, t := range streamedEventTypes {
		subs = append(subs, h.facade.bus.Subscribe(t, func(e *events.Event) { h.enqueueEvent(ch, e) }))
	}
	defer func() {
		for _, s := range subs {
			h.facade.bus.Unsubscribe(s)
		}
	}()

	// A background reader detects client-initiated close or any read
	// error; this stream never expects incoming application messages.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	if err := wsjson.Write(ctx, conn, h.facade.buildStatus()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := wsjson.Write(ctx, conn, h.facade.buildStatus()); err != nil {
				return
			}
		}
	}
}
