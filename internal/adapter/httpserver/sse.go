package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/talentforge/assessor/internal/observability"
)

// EventsHandler bridges the user's event channel onto a Server-Sent Events
// stream. The worker publishes through Redis, so streaming works regardless
// of which process handled the triggering request. Delivery is best-effort;
// a client that reconnects re-syncs by refetching report state.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: apiError{
				Code: "INTERNAL", Message: "streaming unsupported",
			}})
			return
		}

		// The stream outlives the server's write timeout; clear the
		// connection deadline so heartbeats keep it open indefinitely.
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		userID := UserID(r)
		sub, err := s.Events.Subscribe(r.Context(), userID)
		if err != nil {
			writeError(w, r, fmt.Errorf("subscribe: %w", err), nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		// Tell the client we are live before the first event arrives.
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		log := observability.LoggerFromContext(r.Context())
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case env, open := <-sub:
				if !open {
					return
				}
				data, err := json.Marshal(env)
				if err != nil {
					log.Warn("dropping unserializable event", slog.Any("error", err))
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, data)
				flusher.Flush()
			}
		}
	}
}
