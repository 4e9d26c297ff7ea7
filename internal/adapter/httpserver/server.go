package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/talentforge/assessor/internal/adapter/events"
	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/usecase"
)

// EventSource is the subscription side of the event channel, consumed by the
// SSE bridge.
type EventSource interface {
	Subscribe(ctx context.Context, userID string) (<-chan events.Envelope, error)
}

// Server aggregates handler dependencies for the HTTP-facing process.
type Server struct {
	Cfg       config.Config
	Reports   usecase.ReportService
	Dicts     usecase.DictionaryService
	Documents usecase.DocumentService
	Generate  usecase.GenerateService
	Results   usecase.ResultService
	Events    EventSource

	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
	AICheck    func(ctx context.Context) error
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the external collaborators the server depends on.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	probes := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"db", s.DBCheck},
		{"redis", s.RedisCheck},
		{"tika", s.TikaCheck},
		{"ai", s.AICheck},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		ok := true
		checks := make([]check, 0, len(probes))
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
