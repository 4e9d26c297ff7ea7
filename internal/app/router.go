// Package app wires middleware, routes and background loops for the two
// processes. No business rules live here.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentforge/assessor/internal/adapter/httpserver"
	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means allow-all.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics stay outside Identity so probes need no headers.
	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(ar chi.Router) {
		ar.Use(httpserver.Identity)

		// Mutating endpoints are rate limited and carry a request deadline.
		// The SSE stream lives outside the timeout group; it is long-lived.
		ar.Group(func(wr chi.Router) {
			wr.Use(httpserver.TimeoutMiddleware(30 * time.Second))
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			wr.Post("/v1/reports", srv.CreateReportHandler())
			wr.Post("/v1/reports/{id}/documents", srv.UploadDocumentHandler())
			wr.Post("/v1/reports/{id}/generate/{phase}", srv.TriggerGenerateHandler())
			wr.Post("/v1/reports/{id}/cancel", srv.CancelGenerateHandler())
			wr.Post("/v1/dictionaries", srv.CreateDictionaryHandler())
			wr.Put("/v1/dictionaries/{id}", srv.UpdateDictionaryHandler())
		})

		ar.Group(func(rr chi.Router) {
			rr.Use(httpserver.TimeoutMiddleware(30 * time.Second))
			rr.Get("/v1/reports/{id}", srv.GetReportHandler())
			rr.Get("/v1/reports/{id}/documents", srv.ListDocumentsHandler())
			rr.Get("/v1/reports/{id}/evidence", srv.ListEvidenceHandler())
			rr.Get("/v1/reports/{id}/analyses", srv.ListAnalysesHandler())
			rr.Get("/v1/reports/{id}/summary", srv.GetSummaryHandler())
			rr.Get("/v1/dictionaries/{id}", srv.GetDictionaryHandler())
		})

		ar.Get("/v1/events", srv.EventsHandler())
	})

	return httpserver.SecurityHeaders(r)
}
