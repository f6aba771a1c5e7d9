package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/keymint/keymint/pkg/journal"
	"github.com/keymint/keymint/pkg/registry"
)

// HealthCheckTimeout is the maximum time allowed for health check operations.
// This timeout applies to store health checks to prevent slow stores from
// blocking health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server wired up to its stores?
//   - Store health: Detailed health status of the registry and journal
type HealthHandler struct {
	registry  registry.Store
	journal   *journal.Journal
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
//
// The registry and journal parameters may be nil, in which case readiness
// and store health checks will return unhealthy status.
func NewHealthHandler(store registry.Store, j *journal.Journal) *HealthHandler {
	return &HealthHandler{
		registry:  store,
		journal:   j,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as the
// HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"service":    "keymint",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
// Returns 200 OK if the registry and journal are wired up. Deep store
// checks live under /health/stores.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("registry not initialized"))
		return
	}
	if h.journal == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("journal not initialized"))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"registry": "initialized",
		"journal":  "initialized",
	}))
}

// StoreHealth represents the health status of a single store.
type StoreHealth struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// StoresResponse represents the detailed store health response.
type StoresResponse struct {
	Registry StoreHealth `json:"registry"`
	Journal  StoreHealth `json:"journal"`
}

// Stores handles GET /health/stores - detailed store health.
//
// Checks the health of the principal registry database and the run journal.
// Returns 200 OK if both are healthy, 503 Service Unavailable otherwise.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil || h.journal == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("stores not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	response := StoresResponse{
		Registry: checkStore(ctx, "registry", "database", h.registry.Healthcheck),
		Journal:  checkStore(ctx, "journal", "badger", h.journal.Healthcheck),
	}

	if response.Registry.Status == "healthy" && response.Journal.Status == "healthy" {
		WriteJSON(w, http.StatusOK, healthyResponse(response))
	} else {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(response))
	}
}

// checkStore runs one health check and captures its latency.
func checkStore(ctx context.Context, name, storeType string, check func(context.Context) error) StoreHealth {
	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	health := StoreHealth{
		Name:    name,
		Type:    storeType,
		Latency: latency.String(),
	}

	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
	} else {
		health.Status = "healthy"
	}

	return health
}
