// Package journal records synthesis runs and their per-iteration reports in
// SQLite or PostgreSQL.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// The schema sticks to types both engines accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		target      INTEGER NOT NULL,
		iterations  INTEGER NOT NULL,
		state_rate  DOUBLE PRECISION NOT NULL,
		model_path  TEXT NOT NULL,
		started_at  BIGINT NOT NULL,
		finished_at BIGINT,
		final_loss  DOUBLE PRECISION,
		predicted   INTEGER,
		frames      INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		iteration   INTEGER NOT NULL,
		loss        DOUBLE PRECISION NOT NULL,
		predicted   INTEGER NOT NULL,
		model_rate  DOUBLE PRECISION NOT NULL,
		predictions TEXT NOT NULL,
		frame_path  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, iteration)
	)`,
}

// Journal is a handle on the run tables.
type Journal struct {
	db     *sql.DB
	driver string
}

// Run is one synthesis run.
type Run struct {
	ID         string
	Target     int
	Iterations int
	StateRate  float64
	ModelPath  string
	StartedAt  time.Time
	// Set once the run finished.
	FinishedAt *time.Time
	FinalLoss  *float64
	Predicted  *int
	Frames     *int
}

// Step is one iteration report.
type Step struct {
	Iteration   int
	Loss        float64
	Predicted   int
	ModelRate   float64
	Predictions []float64
	FramePath   string
}

// Open connects to dsn. postgres:// and postgresql:// URLs use pgx; any other
// value is a SQLite database path.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	} else if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	j := &Journal{db: db, driver: driver}

	if driver == "sqlite" {
		// one writer; an in-memory database only lives on one connection
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("journal: %s: %w", pragma, err)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
		}
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (j *Journal) rebind(query string) string {
	if j.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StartRun registers a run and returns its id.
func (j *Journal) StartRun(ctx context.Context, target, iterations int, stateRate float64, modelPath string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO runs (id, target, iterations, state_rate, model_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), id, target, iterations, stateRate, modelPath, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordStep saves one iteration report.
func (j *Journal) RecordStep(ctx context.Context, runID string, s Step) error {
	preds, err := json.Marshal(s.Predictions)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO steps (run_id, iteration, loss, predicted, model_rate, predictions, frame_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), runID, s.Iteration, s.Loss, s.Predicted, s.ModelRate, string(preds), s.FramePath)
	return err
}

// FinishRun stamps the final report on a run.
func (j *Journal) FinishRun(ctx context.Context, runID string, finalLoss float64, predicted, frames int) error {
	res, err := j.db.ExecContext(ctx, j.rebind(`
		UPDATE runs SET finished_at = ?, final_loss = ?, predicted = ?, frames = ?
		WHERE id = ?
	`), time.Now().UnixMilli(), finalLoss, predicted, frames, runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal: unknown run %s", runID)
	}
	return nil
}

// Runs lists runs, newest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, target, iterations, state_rate, model_path, started_at,
		       finished_at, final_loss, predicted, frames
		FROM runs
		ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			started   int64
			finished  sql.NullInt64
			finalLoss sql.NullFloat64
			predicted sql.NullInt64
			frames    sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Target, &r.Iterations, &r.StateRate, &r.ModelPath, &started,
			&finished, &finalLoss, &predicted, &frames); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		if finalLoss.Valid {
			r.FinalLoss = &finalLoss.Float64
		}
		if predicted.Valid {
			p := int(predicted.Int64)
			r.Predicted = &p
		}
		if frames.Valid {
			f := int(frames.Int64)
			r.Frames = &f
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the reports of one run in iteration order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT iteration, loss, predicted, model_rate, predictions, frame_path
		FROM steps
		WHERE run_id = ?
		ORDER BY iteration
	`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var preds string
		if err := rows.Scan(&s.Iteration, &s.Loss, &s.Predicted, &s.ModelRate, &preds, &s.FramePath); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(preds), &s.Predictions); err != nil {
			return nil, fmt.Errorf("journal: step %d predictions: %w", s.Iteration, err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
