// Package store persists analysis runs and per-tree metrics in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/arbor.report/internal/pipeline"
	"github.com/banshee-data/arbor.report/internal/report"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
}

// pragmas are applied by the driver to every pooled connection.
const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := &DB{sqlDB}
	if err := db.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one batch invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	InputPath  string
	ConfigJSON string
	Succeeded  int
	Failed     int
}

// InsertRun records a run.
func (db *DB) InsertRun(ctx context.Context, r Run) error {
	cfg := r.ConfigJSON
	if cfg == "" {
		cfg = "{}"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, started_at, duration_ms, input_path, config_json, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.Duration.Milliseconds(), r.InputPath, cfg, r.Succeeded, r.Failed)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		r         Run
		startedAt int64
		duration  int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT run_id, started_at, duration_ms, input_path, config_json, succeeded, failed
		FROM analysis_runs WHERE run_id = ?`, id).
		Scan(&r.ID, &startedAt, &duration, &r.InputPath, &r.ConfigJSON, &r.Succeeded, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.Duration = time.Duration(duration) * time.Millisecond
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_ms, input_path, config_json, succeeded, failed
		FROM analysis_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			startedAt int64
			duration  int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &duration, &r.InputPath, &r.ConfigJSON, &r.Succeeded, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, startedAt).UTC()
		r.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertTreeMetrics stores rows for runID in one transaction.
func (db *DB) InsertTreeMetrics(ctx context.Context, runID string, rows []report.Row) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tree_metrics (
			run_id, tree_id, processed_at, height_m, h0_m, crown_depth_m, dbh_cm, dbh_method,
			crown_radius_m, crown_diameter_m, max_crown_width_m, min_crown_width_m, aspect_ratio,
			volume_m3, surface_area_m2, mesh_closed, has_skeleton, leaf_nodes_total, leaf_nodes_filtered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			runID, r.TreeID, r.ProcessingTime.UnixNano(), r.Height, r.H0, r.CrownDepth, r.DBHCm, r.DBHMethod,
			r.CrownRadius, r.CrownDiameter, r.MaxCrownWidth, r.MinCrownWidth, r.AspectRatio,
			r.VolumeM3, r.SurfaceAreaM2, r.MeshClosed, r.HasSkeleton, r.LeafNodesTotal, r.LeafNodesFiltered)
		if err != nil {
			return fmt.Errorf("failed to insert tree %s: %w", r.TreeID, err)
		}
	}
	return tx.Commit()
}

// ListTreeMetrics returns the rows stored for runID ordered by tree ID.
func (db *DB) ListTreeMetrics(ctx context.Context, runID string) ([]report.Row, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tree_id, processed_at, height_m, h0_m, crown_depth_m, dbh_cm, dbh_method,
			crown_radius_m, crown_diameter_m, max_crown_width_m, min_crown_width_m, aspect_ratio,
			volume_m3, surface_area_m2, mesh_closed, has_skeleton, leaf_nodes_total, leaf_nodes_filtered
		FROM tree_metrics WHERE run_id = ? ORDER BY tree_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tree metrics: %w", err)
	}
	defer rows.Close()

	var out []report.Row
	for rows.Next() {
		var (
			r         report.Row
			processed int64
		)
		if err := rows.Scan(&r.TreeID, &processed, &r.Height, &r.H0, &r.CrownDepth, &r.DBHCm, &r.DBHMethod,
			&r.CrownRadius, &r.CrownDiameter, &r.MaxCrownWidth, &r.MinCrownWidth, &r.AspectRatio,
			&r.VolumeM3, &r.SurfaceAreaM2, &r.MeshClosed, &r.HasSkeleton, &r.LeafNodesTotal, &r.LeafNodesFiltered); err != nil {
			return nil, err
		}
		r.ProcessingTime = time.Unix(0, processed).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordBatch stores a finished batch and its successful trees.
func (db *DB) RecordBatch(ctx context.Context, b *pipeline.BatchResult, inputPath, configJSON string) error {
	err := db.InsertRun(ctx, Run{
		ID:         b.RunID,
		StartedAt:  b.StartedAt,
		Duration:   b.Duration,
		InputPath:  inputPath,
		ConfigJSON: configJSON,
		Succeeded:  b.Succeeded,
		Failed:     b.Failed,
	})
	if err != nil {
		return err
	}
	return db.InsertTreeMetrics(ctx, b.RunID, report.Rows(b.Trees))
}
