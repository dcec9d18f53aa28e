package control

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coolbox13/omfietser-processor/internal/config"
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/monitoring"
	"github.com/coolbox13/omfietser-processor/internal/storage"
)

// Handler implements the routes of spec §6.1 against a Job Manager, the
// Storage Contract (for product lookup), and the Monitoring Agent (for
// health/ready).
type Handler struct {
	manager *job.Manager
	repos   storage.Contract
	monitor *monitoring.Agent
	logger  logging.Logger

	defaultSchemaVersion    string
	defaultEnforceStructure bool
}

// NewHandler constructs the Control Surface's request handlers.
func NewHandler(manager *job.Manager, repos storage.Contract, monitor *monitoring.Agent, logger logging.Logger, schemaVersion string, enforceStructure bool) *Handler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if schemaVersion == "" {
		schemaVersion = "1.0.0"
	}
	return &Handler{
		manager:                 manager,
		repos:                   repos,
		monitor:                 monitor,
		logger:                  logger,
		defaultSchemaVersion:    schemaVersion,
		defaultEnforceStructure: enforceStructure,
	}
}

type createJobRequest struct {
	ShopType  string                 `json:"shop_type"`
	BatchSize int                    `json:"batch_size"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func validBatchSize(n int) bool { return n == 0 || (n >= 1 && n <= 10000) }

func validReason(reason string) bool { return len(reason) <= 500 }

// createJob handles POST /jobs.
func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.doCreate(w, r, req.ShopType, req.BatchSize, req.Metadata, false)
}

// processShop handles POST /process/{shopType}: create + start in one call.
func (h *Handler) processShop(w http.ResponseWriter, r *http.Request) {
	shopType := chi.URLParam(r, "shopType")
	var req createJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.doCreate(w, r, shopType, req.BatchSize, req.Metadata, true)
}

// n8nWebhook handles POST /webhook/n8n: external orchestrator trigger.
func (h *Handler) n8nWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action   string                 `json:"action"`
		ShopType string                 `json:"shop_type"`
		BatchID  string                 `json:"batch_id"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Action != "process" {
		writeData(w, http.StatusOK, map[string]interface{}{"action": req.Action, "handled": false})
		return
	}
	h.doCreate(w, r, req.ShopType, 0, req.Metadata, true)
}

func (h *Handler) doCreate(w http.ResponseWriter, r *http.Request, shopType string, batchSize int, metadata map[string]interface{}, start bool) {
	if !config.ValidShopType(shopType) {
		writeError(w, http.StatusBadRequest, "shop_type must be one of ah, jumbo, aldi, plus, kruidvat")
		return
	}
	if !validBatchSize(batchSize) {
		writeError(w, http.StatusBadRequest, "batch_size must be between 1 and 10000")
		return
	}

	newJob, err := h.manager.Create(r.Context(), job.Config{
		ShopType:         shopType,
		BatchSize:        batchSize,
		EnforceStructure: h.defaultEnforceStructure,
		SchemaVersion:    h.defaultSchemaVersion,
		Metadata:         metadata,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !start {
		writeData(w, http.StatusCreated, newJob)
		return
	}

	if err := h.manager.Start(r.Context(), newJob.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	started, err := h.manager.GetByID(r.Context(), newJob.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusCreated, started)
}

// startJob handles POST /jobs/{id}/start.
func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.manager.Start(r.Context(), jobID); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	currentJob, err := h.manager.GetByID(r.Context(), jobID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, currentJob)
}

// cancelJob handles POST /jobs/{id}/cancel.
func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}
	if !validReason(req.Reason) {
		writeError(w, http.StatusBadRequest, "reason must be 1-500 characters")
		return
	}
	if err := h.manager.Cancel(r.Context(), jobID, req.Reason); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	currentJob, err := h.manager.GetByID(r.Context(), jobID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, currentJob)
}

// getJob handles GET /jobs/{id}.
func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	currentJob, err := h.manager.GetByID(r.Context(), jobID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, currentJob)
}

// getProgress handles GET /jobs/{id}/progress.
func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	progress, err := h.manager.Progress(r.Context(), jobID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, progress)
}

// getJobErrors handles GET /jobs/{id}/errors?limit,offset.
func (h *Handler) getJobErrors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	values := r.URL.Query()
	limit := queryInt(values, "limit", 50)
	offset := queryInt(values, "offset", 0)

	errs, err := h.manager.GetErrors(r.Context(), jobID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, errs)
}

// listJobs handles GET /jobs.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	filters := storage.JobFilters{
		ShopType: values.Get("shop_type"),
		Status:   domain.JobStatus(values.Get("status")),
		Limit:    queryInt(values, "limit", 50),
		Offset:   queryInt(values, "offset", 0),
	}
	jobs, err := h.manager.List(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, jobs)
}

// listProducts handles GET /products.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	filters := storage.ProductFilters{
		ShopType: values.Get("shop_type"),
		Limit:    queryInt(values, "limit", 50),
		Offset:   queryInt(values, "offset", 0),
	}
	products, err := h.repos.Processed.List(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, products)
}

// getProduct handles GET /products/{unified_id}.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	unifiedID := chi.URLParam(r, "unifiedID")
	product, err := h.repos.Processed.Get(r.Context(), unifiedID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

// health handles GET /health: liveness, never gated on dependency state.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	sample := h.sampleOrZero(r)
	writeData(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"database": map[string]interface{}{"healthy": h.repos.Health.IsHealthy()},
		"system": map[string]interface{}{
			"uptime_seconds":  sample.UptimeSeconds,
			"memory_alloc_mb": sample.MemoryAllocMB,
			"active_jobs":     sample.ActiveJobs,
		},
	})
}

// ready handles GET /ready: readiness, 503 when a dependency is down.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	dbHealthy := h.repos.Health.IsHealthy()
	jobManagerReady := h.manager != nil

	status := http.StatusOK
	state := "ready"
	if !dbHealthy || !jobManagerReady {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	writeJSON(w, status, envelope{
		Success: status == http.StatusOK,
		Data: map[string]interface{}{
			"status": state,
			"checks": map[string]interface{}{
				"database":   dbHealthy,
				"jobManager": jobManagerReady,
			},
		},
	})
}

func (h *Handler) sampleOrZero(r *http.Request) monitoring.Sample {
	if h.monitor == nil {
		return monitoring.Sample{}
	}
	return h.monitor.Sample(r.Context())
}

// writeTransitionError classifies manager/storage errors into the spec's
// 404/409/500 status codes (spec §6.1).
func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case isIllegalTransition(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("control surface request failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isIllegalTransition(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not pending") || strings.Contains(msg, "already")
}
