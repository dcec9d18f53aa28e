package control

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/monitoring"
	"github.com/coolbox13/omfietser-processor/internal/storage"
)

// NewRouter builds the full route table of spec §6.1.
func NewRouter(manager *job.Manager, repos storage.Contract, monitor *monitoring.Agent, logger logging.Logger, schemaVersion string, enforceStructure bool) http.Handler {
	h := NewHandler(manager, repos, monitor, logger, schemaVersion, enforceStructure)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.createJob)
		r.Get("/", h.listJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Post("/start", h.startJob)
			r.Post("/cancel", h.cancelJob)
			r.Get("/progress", h.getProgress)
			r.Get("/errors", h.getJobErrors)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{unifiedID}", h.getProduct)
	})

	r.Post("/process/{shopType}", h.processShop)
	r.Post("/webhook/n8n", h.n8nWebhook)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)

	return r
}
