// Package state persists import-run history in a local SQLite database so a
// re-import can report which models actually changed.
package state

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed import history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ImportRun is one recorded import.
type ImportRun struct {
	ID            string
	Project       string
	Adapter       string
	TargetDialect string
	StartedAt     time.Time
	CompletedAt   time.Time
	Models        int
	Warnings      int
	Failures      int
}

// BeginRun records the start of an import.
func (s *Store) BeginRun(project, adapter, targetDialect string) (*ImportRun, error) {
	run := &ImportRun{
		ID:            uuid.New().String(),
		Project:       project,
		Adapter:       adapter,
		TargetDialect: targetDialect,
		StartedAt:     time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO import_runs (id, project, adapter, target_dialect, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Adapter, run.TargetDialect, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// FinishRun records per-model results and closes out the run in a single
// transaction.
func (s *Store) FinishRun(run *ImportRun, results []core.ConversionResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	defer tx.Rollback()

	var warnings, failures int
	for i := range results {
		r := &results[i]
		switch r.Status {
		case core.ConversionWarning:
			warnings++
		case core.ConversionFailed:
			failures++
		}
		_, err := tx.Exec(
			`INSERT INTO model_conversions (run_id, model, relation, schema, status, sql_hash, render_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, r.Model, r.Relation, r.Schema, string(r.Status), HashSQL(r.SQL), r.RenderMS,
		)
		if err != nil {
			return fmt.Errorf("record model %s: %w", r.Model, err)
		}
	}

	run.CompletedAt = time.Now().UTC()
	run.Models = len(results)
	run.Warnings = warnings
	run.Failures = failures
	_, err = tx.Exec(
		`UPDATE import_runs SET completed_at = ?, models = ?, warnings = ?, failures = ? WHERE id = ?`,
		run.CompletedAt, run.Models, run.Warnings, run.Failures, run.ID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return tx.Commit()
}

// LastRun returns the most recent completed run for a project, or nil.
func (s *Store) LastRun(project string) (*ImportRun, error) {
	run := &ImportRun{}
	var completed sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, project, adapter, target_dialect, started_at, completed_at, models, warnings, failures
		 FROM import_runs WHERE project = ? AND completed_at IS NOT NULL
		 ORDER BY started_at DESC LIMIT 1`,
		project,
	).Scan(&run.ID, &run.Project, &run.Adapter, &run.TargetDialect,
		&run.StartedAt, &completed, &run.Models, &run.Warnings, &run.Failures)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	if completed.Valid {
		run.CompletedAt = completed.Time
	}
	return run, nil
}

// ModelHashes returns model -> sql hash for a run.
func (s *Store) ModelHashes(runID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT model, sql_hash FROM model_conversions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("model hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var model, hash string
		if err := rows.Scan(&model, &hash); err != nil {
			return nil, fmt.Errorf("model hashes: %w", err)
		}
		hashes[model] = hash
	}
	return hashes, rows.Err()
}

// Changed compares current results against the hashes of the project's last
// run and returns the names of models whose output differs or is new. A nil
// previous run means every model is new.
func (s *Store) Changed(project string, results []core.ConversionResult) ([]string, error) {
	last, err := s.LastRun(project)
	if err != nil {
		return nil, err
	}
	prev := map[string]string{}
	if last != nil {
		prev, err = s.ModelHashes(last.ID)
		if err != nil {
			return nil, err
		}
	}

	var changed []string
	for i := range results {
		r := &results[i]
		if prev[r.Model] != HashSQL(r.SQL) {
			changed = append(changed, r.Model)
		}
	}
	return changed, nil
}

// HashSQL returns the hex sha256 of rendered SQL.
func HashSQL(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
