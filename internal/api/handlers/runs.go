package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keymint/keymint/pkg/journal"
	"github.com/keymint/keymint/pkg/materialize"
)

// DefaultRunListLimit caps GET /api/v1/runs when no limit is given.
const DefaultRunListLimit = 50

// RunsHandler handles run history and on-demand materialization endpoints.
type RunsHandler struct {
	journal *journal.Journal
	runner  *materialize.Runner

	// Materialization runs mutate shared staging and cache directories;
	// one at a time.
	mu sync.Mutex
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(j *journal.Journal, runner *materialize.Runner) *RunsHandler {
	return &RunsHandler{
		journal: j,
		runner:  runner,
	}
}

// RunResponse is the response body for run endpoints.
type RunResponse struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Succeeded  bool      `json:"succeeded"`
	Message    string    `json:"message,omitempty"`
	Fatal      string    `json:"fatal,omitempty"`
}

// RunResultResponse is the response body for per-identity run results.
type RunResultResponse struct {
	Seq             int    `json:"seq"`
	Principal       string `json:"principal"`
	Host            string `json:"host,omitempty"`
	Outcome         string `json:"outcome"`
	DestinationFile string `json:"destination_file,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ExecuteRunRequest is the request body for POST /api/v1/runs.
//
// Identities follow the manifest record format; secrets carry the
// freshly generated passwords and key version numbers for this run.
// Principals absent from the password map are served from cache.
type ExecuteRunRequest struct {
	Identities []materialize.Record `json:"identities"`
	Secrets    RunSecrets           `json:"secrets"`
}

// RunSecrets is the secrets section of an ExecuteRunRequest.
type RunSecrets struct {
	Passwords   map[string]string `json:"passwords"`
	KeyVersions map[string]int    `json:"key_versions"`
}

// List handles GET /api/v1/runs.
// Accepts an optional ?limit=N query parameter (default 50).
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			BadRequest(w, "Limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.journal.ListRuns(r.Context(), limit)
	if err != nil {
		InternalServerError(w, "Failed to list runs")
		return
	}

	response := make([]RunResponse, len(runs))
	for i := range runs {
		response[i] = runToResponse(&runs[i])
	}

	WriteJSONOK(w, response)
}

// Get handles GET /api/v1/runs/{id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		BadRequest(w, "Run ID is required")
		return
	}

	run, err := h.journal.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, journal.ErrRunNotFound) {
			NotFound(w, "Run not found")
			return
		}
		InternalServerError(w, "Failed to get run")
		return
	}

	WriteJSONOK(w, runToResponse(run))
}

// Results handles GET /api/v1/runs/{id}/results.
// Returns the per-identity outcomes of the run in processing order.
func (h *RunsHandler) Results(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		BadRequest(w, "Run ID is required")
		return
	}

	results, err := h.journal.ListResults(r.Context(), runID)
	if err != nil {
		if errors.Is(err, journal.ErrRunNotFound) {
			NotFound(w, "Run not found")
			return
		}
		InternalServerError(w, "Failed to list run results")
		return
	}

	response := make([]RunResultResponse, len(results))
	for i, res := range results {
		response[i] = RunResultResponse{
			Seq:             res.Seq,
			Principal:       res.Principal,
			Host:            res.Host,
			Outcome:         res.Outcome,
			DestinationFile: res.DestinationFile,
			Reason:          res.Reason,
			Kind:            res.Kind,
			Message:         res.Message,
		}
	}

	WriteJSONOK(w, response)
}

// Delete handles DELETE /api/v1/runs/{id}.
// Removes the run and its results from the journal.
func (h *RunsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		BadRequest(w, "Run ID is required")
		return
	}

	if err := h.journal.DeleteRun(r.Context(), runID); err != nil {
		if errors.Is(err, journal.ErrRunNotFound) {
			NotFound(w, "Run not found")
			return
		}
		InternalServerError(w, "Failed to delete run")
		return
	}

	WriteNoContent(w)
}

// Execute handles POST /api/v1/runs.
// Runs the submitted identity records through the materialization engine and
// returns the run report. Per-identity failures are reported in the body;
// only engine faults produce an error status.
func (h *RunsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRunRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if len(req.Identities) == 0 {
		BadRequest(w, "At least one identity record is required")
		return
	}

	manifest := &materialize.Manifest{Identities: req.Identities}
	if err := manifest.Validate(); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	secrets := materialize.Secrets{
		Passwords:   req.Secrets.Passwords,
		KeyVersions: req.Secrets.KeyVersions,
	}

	h.mu.Lock()
	report, err := h.runner.Run(r.Context(), manifest, secrets)
	h.mu.Unlock()

	if err != nil {
		if report == nil {
			InternalServerError(w, "Failed to start run")
			return
		}
		InternalServerError(w, fmt.Sprintf("Run %s aborted: %s", report.RunID, report.Fatal))
		return
	}

	WriteJSONCreated(w, report)
}

// runToResponse converts a journal.Run to RunResponse.
func runToResponse(run *journal.Run) RunResponse {
	return RunResponse{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Total:      run.Total,
		Created:    run.Created,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Succeeded:  run.Succeeded(),
		Message:    run.Message,
		Fatal:      run.Fatal,
	}
}
