/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions
  that expose the shift calendar to the calendar widget.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the widget's origin

ROUTE GROUPS:
  /api/health              Liveness + refresh state
  /api/employees, /tags    Reference data
  /api/view, /refresh      Loaded window
  /api/events/*            Calendar widget callbacks
  /api/shifts/*            Add / edit, ICS export
  /api/availability/*      Conflict checks for the shift form
  /api/overrides           Availability overrides of the open form
  /api/counts              Header statistics
  /api/publish, copy-week  Batch operations
  /api/batch, /runs        Batch progress and history

SECURITY NOTE:
  No authentication middleware. Vendor credentials never leave the server.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/scheduler/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// DefaultOrigins are the widget origins allowed when none are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/employees", h.ListEmployees)
		r.Get("/tags", h.ListTags)

		r.Get("/view", h.GetView)
		r.Post("/refresh", h.Refresh)

		r.Post("/events/{kind}", h.HandleEvent)

		r.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.AddShift)
			r.Put("/{id}", h.EditShift)
		})
		r.Get("/shifts.ics", h.ExportICS)

		r.Route("/availability", func(r chi.Router) {
			r.Get("/check", h.CheckAvailability)
			r.Get("/disabled", h.DisabledDates)
		})

		r.Route("/overrides", func(r chi.Router) {
			r.Get("/", h.ListOverrides)
			r.Post("/", h.AddOverride)
			r.Delete("/", h.ClearOverrides)
		})

		r.Get("/counts", h.Counts)

		r.Post("/publish", h.Publish)
		r.Post("/copy-week", h.CopyWeek)
		r.Route("/batch", func(r chi.Router) {
			r.Get("/", h.BatchStatus)
			r.Post("/stop", h.StopBatch)
		})
		r.Get("/runs", h.ListRuns)
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
