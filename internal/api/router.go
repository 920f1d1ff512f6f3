package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the HTTP surface: synchronous and queued scraping, metrics
// in JSON and Prometheus form, and a health probe.
func NewRouter(handlers *Handlers, collector *metrics.Collector) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "ok",
			"active_sessions": snapshot.ActiveSessions,
			"total_requests":  snapshot.TotalRequests,
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scrape", handlers.Scrape)
		r.Get("/metrics", handlers.GetMetrics)

		r.Post("/jobs", handlers.CreateJob)
		r.Get("/jobs", handlers.ListJobs)
		r.Get("/jobs/{jobID}", handlers.GetJob)
	})

	return r
}
