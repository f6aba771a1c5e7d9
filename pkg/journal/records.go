package journal

import (
	"context"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/keymint/keymint/internal/telemetry"
	"github.com/keymint/keymint/pkg/materialize"
)

// RecordRun stores the report summary and its per-identity outcomes in one
// transaction. Implements materialize.RunRecorder.
func (j *Journal) RecordRun(ctx context.Context, report *materialize.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanJournalRecord)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.RunID(report.RunID), telemetry.JournalPath(j.dir))

	run := &Run{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Total:      report.Total,
		Created:    report.Created,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Message:    report.Message,
		Fatal:      report.Fatal,
	}

	runBytes, err := encodeRun(run)
	if err != nil {
		return err
	}

	results := make([][]byte, len(report.Results))
	for i, result := range report.Results {
		encoded, err := encodeResult(&RunResult{
			RunID:           report.RunID,
			Seq:             i,
			Principal:       result.Principal,
			Host:            result.Host,
			Outcome:         string(result.Outcome),
			DestinationFile: result.DestinationFile,
			Reason:          result.Reason,
			Kind:            result.Kind,
			Message:         result.Message,
		})
		if err != nil {
			return err
		}
		results[i] = encoded
	}

	err = j.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyRun(report.RunID), runBytes); err != nil {
			return err
		}
		for i, encoded := range results {
			if err := txn.Set(keyResult(report.RunID, i), encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// GetRun retrieves a run summary by ID.
// Returns ErrRunNotFound if the run was never journaled.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var run *Run
	err := j.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyRun(runID))
		if err == badgerdb.ErrKeyNotFound {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var decErr error
			run, decErr = decodeRun(val)
			return decErr
		})
	})

	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns returns run summaries ordered most recent first. A limit of zero
// or less returns every run.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var runs []Run
	err := j.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				run, err := decodeRun(val)
				if err != nil {
					return err
				}
				runs = append(runs, *run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Run IDs are random, so key order is meaningless; sort by start time.
	sort.Slice(runs, func(i, k int) bool { return runs[i].StartedAt.After(runs[k].StartedAt) })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// ListResults returns a run's per-identity outcomes in processing order.
// Returns ErrRunNotFound if the run was never journaled.
func (j *Journal) ListResults(ctx context.Context, runID string) ([]RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []RunResult
	err := j.db.View(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyRun(runID)); err == badgerdb.ErrKeyNotFound {
			return ErrRunNotFound
		} else if err != nil {
			return err
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = keyResultPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				result, err := decodeResult(val)
				if err != nil {
					return err
				}
				results = append(results, *result)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteRun removes a run summary and all its outcomes.
// Returns ErrRunNotFound if the run was never journaled.
func (j *Journal) DeleteRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return j.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keyRun(runID))
		if err == badgerdb.ErrKeyNotFound {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}

		if err := txn.Delete(keyRun(runID)); err != nil {
			return err
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyResultPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keysToDelete = append(keysToDelete, append([]byte{}, it.Item().Key()...))
		}
		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}
