package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", g.handleHealth())
	if g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", g.handleStats())
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", g.handleListTasks())
			r.Post("/", g.handleScheduleTask())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", g.handleTaskStatus())
				r.Delete("/", g.handleCancelTask())
				r.Get("/results", g.handleTaskResults())
				r.Post("/pause", g.handlePauseTask())
				r.Post("/resume", g.handleResumeTask())
				r.Post("/reset-failures", g.handleResetFailures())
				r.Post("/run", g.handleRunNow())
			})
		})
	})

	return r
}
