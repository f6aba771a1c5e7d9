package materialize

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/internal/telemetry"
	"github.com/keymint/keymint/pkg/registry/models"
)

// Report is the outcome of one manifest run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	// Results holds one entry per processed record in manifest order. When
	// a fatal fault aborts the run, unprocessed records are absent.
	Results []Result `json:"results"`

	// Message is the most recent failure message of the run, empty when
	// no record failed.
	Message string `json:"message,omitempty"`

	// Fatal carries the engine fault or cancellation that aborted the
	// run, if any.
	Fatal string `json:"fatal,omitempty"`
}

func (r *Report) add(result Result) {
	r.Results = append(r.Results, result)
	r.Total++

	switch result.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
		r.Message = result.Message
	}
}

// Succeeded reports whether the run completed with no failed records.
func (r *Report) Succeeded() bool {
	return r.Fatal == "" && r.Failed == 0
}

// RunRecorder persists run reports. The journal implements it; a nil
// recorder disables persistence.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *Report) error
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	// Engine is the wiring used to build one engine per run.
	Engine Config

	// Recorder persists run reports; nil disables persistence.
	Recorder RunRecorder

	// SkipProvisionRecords disables writing host provisioning records for
	// delivered keytabs. Later passwordless runs then regenerate instead
	// of skipping.
	SkipProvisionRecords bool
}

// Runner executes manifest runs. Each Run builds a fresh engine so the
// visitation set starts empty, processes records in order, and stops early
// only on engine faults or context cancellation.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner validates the engine wiring and returns a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	// Build a throwaway engine to surface wiring mistakes at startup
	// rather than on the first run.
	if _, err := NewEngine(cfg.Engine); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg}, nil
}

// Run processes the manifest records against the secrets. Per-identity
// failures are recorded on the report and the batch continues; the
// returned error is non-nil only for engine faults and cancellation, both
// of which abort the batch.
func (r *Runner) Run(ctx context.Context, manifest *Manifest, secrets Secrets) (*Report, error) {
	engine, err := NewEngine(r.cfg.Engine)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	ctx = logger.WithContext(ctx, logger.NewLogContext(report.RunID))
	ctx, runSpan := telemetry.StartRunSpan(ctx, report.RunID, len(manifest.Identities))
	defer runSpan.End()

	logger.InfoCtx(ctx, "Starting keytab materialization run",
		logger.KeyTotal, len(manifest.Identities),
		logger.KeyDataDir, engine.DataDir(),
	)

	var fatal error
	for _, record := range manifest.Identities {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}

		recordCtx, span := telemetry.StartMaterializeSpan(ctx, record.Principal, record.Host, record.KeytabPath)
		result := engine.Materialize(recordCtx, record.Identity(), record.Principal, secrets)
		span.SetAttributes(telemetry.Outcome(string(result.Outcome)))
		if result.Failed() {
			telemetry.RecordError(recordCtx, result.Err)
		}
		span.End()
		report.add(result)

		if result.Outcome == OutcomeCreated && !r.cfg.SkipProvisionRecords {
			r.markProvisioned(ctx, engine, record)
		}

		if result.Failed() && IsFatal(result.Err) {
			fatal = result.Err
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	telemetry.RecordRunTotals(runSpan, report.Total, report.Created, report.Skipped, report.Failed)
	if fatal != nil {
		report.Fatal = fatal.Error()
		telemetry.RecordError(ctx, fatal)
		logger.ErrorCtx(ctx, "Aborting keytab materialization run",
			logger.KeyError, fatal.Error(),
		)
	}

	logger.InfoCtx(ctx, "Keytab materialization run finished",
		logger.KeyTotal, report.Total,
		logger.KeyCreated, report.Created,
		logger.KeySkipped, report.Skipped,
		logger.KeyFailed, report.Failed,
	)

	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.RecordRun(ctx, report); err != nil {
			logger.WarnCtx(ctx, "Failed to journal the run report",
				logger.KeyRunID, report.RunID,
				logger.KeyError, err.Error(),
			)
		}
	}

	return report, fatal
}

// markProvisioned records that the keytab reached the staging area, so a
// later run without a password can recognize there is nothing to do. A
// recording failure costs one redundant regeneration, so it only warns.
func (r *Runner) markProvisioned(ctx context.Context, engine *Engine, record Record) {
	provision := &models.HostProvision{
		PrincipalName: record.Principal,
		Host:          record.Host,
		KeytabPath:    record.KeytabPath,
	}
	if err := engine.registry.MarkProvisioned(ctx, provision); err != nil {
		logger.WarnCtx(ctx, "Failed to record host provisioning",
			logger.KeyPrincipal, record.Principal,
			logger.KeyHost, record.Host,
			logger.KeyError, err.Error(),
		)
	}
}
