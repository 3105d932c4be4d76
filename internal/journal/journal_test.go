package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, j *Journal) {
	ctx := context.Background()

	id, err := j.StartRun(ctx, 3, 201, 0.04, "data/model.json")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	steps := []Step{
		{Iteration: 0, Loss: 2.5, Predicted: 10, ModelRate: 0, Predictions: []float64{0.1, 0.9}, FramePath: "data/iterations/0.png"},
		{Iteration: 1, Loss: 2.1, Predicted: 3, ModelRate: 0.005, Predictions: []float64{0.6, 0.4}},
	}
	for _, s := range steps {
		if err := j.RecordStep(ctx, id, s); err != nil {
			t.Fatalf("RecordStep(%d): %v", s.Iteration, err)
		}
	}
	if err := j.RecordStep(ctx, id, steps[0]); err == nil {
		t.Error("RecordStep accepted a duplicate iteration")
	}

	runs, err := j.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	var found *Run
	for i := range runs {
		if runs[i].ID == id {
			found = &runs[i]
		}
	}
	if found == nil {
		t.Fatalf("run %s not listed", id)
	}
	if found.FinishedAt != nil || found.Target != 3 || found.Iterations != 201 {
		t.Errorf("unfinished run = %+v", found)
	}

	if err := j.FinishRun(ctx, id, 2.1, 3, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := j.FinishRun(ctx, "no-such-run", 0, 0, 0); err == nil {
		t.Error("FinishRun accepted an unknown run")
	}
	runs, err = j.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range runs {
		if r.ID != id {
			continue
		}
		if r.FinishedAt == nil || *r.Predicted != 3 || *r.Frames != 1 || *r.FinalLoss != 2.1 {
			t.Errorf("finished run = %+v", r)
		}
	}

	got, err := j.Steps(ctx, id)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d steps, want 2", len(got))
	}
	if got[1].ModelRate != 0.005 || got[1].Predictions[0] != 0.6 || got[0].FramePath != "data/iterations/0.png" {
		t.Errorf("steps = %+v", got)
	}
}

func TestSQLiteJournal(t *testing.T) {
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal", "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	exercise(t, j)
}

// TestPostgresJournal runs against a real server when DREAMNET_TEST_PG holds a DSN.
func TestPostgresJournal(t *testing.T) {
	dsn := os.Getenv("DREAMNET_TEST_PG")
	if dsn == "" {
		t.Skip("DREAMNET_TEST_PG not set")
	}
	j, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	exercise(t, j)
}

func TestRebind(t *testing.T) {
	pg := &Journal{driver: "pgx"}
	if got := pg.rebind("VALUES (?, ?, ?)"); got != "VALUES ($1, $2, $3)" {
		t.Errorf("rebind = %q", got)
	}
	lite := &Journal{driver: "sqlite"}
	if got := lite.rebind("WHERE id = ?"); got != "WHERE id = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}
