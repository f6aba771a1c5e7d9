package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keymint/keymint/pkg/materialize"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return j
}

func sampleReport(runID string, started time.Time) *materialize.Report {
	return &materialize.Report{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Total:      2,
		Created:    1,
		Failed:     1,
		Message:    "failed to create keytab for yarn@EXAMPLE.COM, missing cached file",
		Results: []materialize.Result{
			{
				Principal:       "hdfs@EXAMPLE.COM",
				Host:            "h1",
				Outcome:         materialize.OutcomeCreated,
				DestinationFile: "/var/lib/keymint/data/h1/abc",
			},
			{
				Principal: "yarn@EXAMPLE.COM",
				Host:      "h1",
				Outcome:   materialize.OutcomeFailed,
				Kind:      "missing_cached_material",
				Message:   "failed to create keytab for yarn@EXAMPLE.COM, missing cached file",
			},
		},
	}
}

func TestOpen_RequiresDirectory(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open() expected error for empty directory")
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	j := openTestJournal(t)
	started := time.Now().UTC().Truncate(time.Millisecond)

	if err := j.RecordRun(context.Background(), sampleReport("run-a", started)); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	run, err := j.GetRun(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}

	if run.ID != "run-a" || run.Total != 2 || run.Created != 1 || run.Failed != 1 {
		t.Errorf("run = %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, started)
	}
	if run.Succeeded() {
		t.Error("a run with failures must not report success")
	}

	results, err := j.ListResults(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Seq != 0 || results[0].Principal != "hdfs@EXAMPLE.COM" || results[0].Outcome != "created" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if results[1].Seq != 1 || results[1].Kind != "missing_cached_material" {
		t.Errorf("result 1 = %+v", results[1])
	}
}

func TestGetRun_NotFound(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.GetRun(context.Background(), "absent"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	j := openTestJournal(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i, runID := range []string{"run-old", "run-mid", "run-new"} {
		report := sampleReport(runID, base.Add(time.Duration(i)*time.Minute))
		if err := j.RecordRun(context.Background(), report); err != nil {
			t.Fatalf("RecordRun(%s) error = %v", runID, err)
		}
	}

	runs, err := j.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-mid" || runs[2].ID != "run-old" {
		t.Errorf("order = %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := j.ListRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRuns(2) error = %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "run-new" {
		t.Errorf("limited runs = %+v", limited)
	}
}

func TestListResults_NotFound(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.ListResults(context.Background(), "absent"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ListResults() error = %v, want ErrRunNotFound", err)
	}
}

func TestDeleteRun(t *testing.T) {
	j := openTestJournal(t)

	if err := j.RecordRun(context.Background(), sampleReport("run-a", time.Now().UTC())); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	if err := j.DeleteRun(context.Background(), "run-a"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}

	if _, err := j.GetRun(context.Background(), "run-a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() after delete error = %v, want ErrRunNotFound", err)
	}
	if _, err := j.ListResults(context.Background(), "run-a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ListResults() after delete error = %v, want ErrRunNotFound", err)
	}

	if err := j.DeleteRun(context.Background(), "run-a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.RecordRun(context.Background(), sampleReport("run-a", time.Now().UTC())); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	run, err := reopened.GetRun(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if run.Total != 2 {
		t.Errorf("run total = %d, want 2", run.Total)
	}
}

func TestJournal_Healthcheck(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck() error = %v", err)
	}
}

func TestJournal_ContextCancellation(t *testing.T) {
	j := openTestJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := j.RecordRun(ctx, sampleReport("run-a", time.Now().UTC())); !errors.Is(err, context.Canceled) {
		t.Errorf("RecordRun() error = %v, want context.Canceled", err)
	}
	if _, err := j.ListRuns(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ListRuns() error = %v, want context.Canceled", err)
	}
}
