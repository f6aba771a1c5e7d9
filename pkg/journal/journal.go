// Package journal persists materialization run history in BadgerDB.
//
// Every run is stored as a summary record plus one record per processed
// identity, so operators can answer "what happened to principal X on host Y
// and when" long after the log lines rotated away. The journal stores
// outcomes and messages only, never key material.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/keymint/keymint/internal/securefs"
	"github.com/keymint/keymint/pkg/materialize"
)

// ErrRunNotFound is returned when a run ID has no journal record.
var ErrRunNotFound = errors.New("run not found")

// Run is the journaled summary of one materialization run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	// Message is the last failure message of the run, empty when every
	// record succeeded.
	Message string `json:"message,omitempty"`

	// Fatal is the engine fault that aborted the run, if any.
	Fatal string `json:"fatal,omitempty"`
}

// Succeeded reports whether the run completed with no failed records.
func (r *Run) Succeeded() bool {
	return r.Fatal == "" && r.Failed == 0
}

// RunResult is one identity outcome within a run, in processing order.
type RunResult struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`

	Principal       string `json:"principal"`
	Host            string `json:"host,omitempty"`
	Outcome         string `json:"outcome"`
	DestinationFile string `json:"destination_file,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Journal is a BadgerDB-backed run history store.
//
// Thread Safety: all operations use BadgerDB transactions and are safe for
// concurrent use.
type Journal struct {
	db  *badgerdb.DB
	dir string
}

// Open opens the journal database at dir, creating it when missing. The
// directory is restricted to the owner before BadgerDB touches it.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal directory is required")
	}

	if err := securefs.MkdirOwnerOnly(dir); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
	}

	opts := badgerdb.DefaultOptions(dir)
	// BadgerDB's own logger is noisy at INFO; journal activity is logged
	// by the callers instead.
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database at %s: %w", dir, err)
	}

	return &Journal{db: db, dir: dir}, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Healthcheck verifies the journal can serve requests by starting a read
// transaction. Suitable for liveness probes.
func (j *Journal) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := j.db.View(func(txn *badgerdb.Txn) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal healthcheck failed: %w", err)
	}

	return nil
}

// Journal satisfies the runner's persistence hook.
var _ materialize.RunRecorder = (*Journal)(nil)
