// Package persistence records sky diagnostics in SQLite: one row per run,
// one per frame that shifted the buffer, and the event log.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexsky/internal/engine"
	"github.com/talgya/hexsky/internal/sky"
)

// DB wraps a SQLite connection for diagnostics.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		last_tick INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		tile_width REAL NOT NULL,
		tile_height REAL NOT NULL,
		variants INTEGER NOT NULL,
		speed_q REAL NOT NULL,
		speed_r REAL NOT NULL,
		max_step REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		offset_x REAL NOT NULL,
		offset_y REAL NOT NULL,
		diff_x INTEGER NOT NULL,
		diff_y INTEGER NOT NULL,
		mutations INTEGER NOT NULL,
		reseeded INTEGER NOT NULL,
		clamped INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sky_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frames_run_tick ON frames(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun registers a new run with its configuration and returns its id.
func (db *DB) StartRun(cfg sky.Config) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`INSERT INTO runs
		(id, started_at, width, height, tile_width, tile_height, variants, speed_q, speed_r, max_step)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().Unix(), cfg.Width, cfg.Height, cfg.TileWidth, cfg.TileHeight,
		cfg.Variants, cfg.Speed.Q, cfg.Speed.R, cfg.MaxStep,
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	slog.Info("diagnostics run started", "run", id)
	return id, nil
}

// EndRun stamps the run's end time and final tick.
func (db *DB) EndRun(runID string, lastTick uint64) error {
	_, err := db.conn.Exec("UPDATE runs SET ended_at = ?, last_tick = ? WHERE id = ?",
		time.Now().Unix(), lastTick, runID)
	return err
}

// RecordFrames appends frame records for a run in one transaction.
func (db *DB) RecordFrames(runID string, frames []engine.FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO frames
		(run_id, tick, offset_x, offset_y, diff_x, diff_y, mutations, reseeded, clamped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		clamped := 0
		if f.Clamped {
			clamped = 1
		}
		if _, err := stmt.Exec(runID, f.Tick, f.OffsetX, f.OffsetY, f.DiffX, f.DiffY,
			f.Mutations, f.Reseeded, clamped); err != nil {
			return fmt.Errorf("insert frame %d: %w", f.Tick, err)
		}
	}

	if _, err := tx.Exec("UPDATE runs SET last_tick = ? WHERE id = ?",
		frames[len(frames)-1].Tick, runID); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)",
			runID, e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in sky metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sky_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sky_meta WHERE key = ?", key)
	return value, err
}

// RecentFrames returns the newest frame records of a run, newest first.
func (db *DB) RecentFrames(runID string, limit int) ([]engine.FrameRecord, error) {
	var frames []engine.FrameRecord
	err := db.conn.Select(&frames, `SELECT tick, offset_x, offset_y, diff_x, diff_y, mutations, reseeded, clamped
		FROM frames WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	return frames, err
}

// RecentEvents returns the most recent N events of a run.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// RunSummary aggregates a run's recorded frames.
type RunSummary struct {
	RunID          string `db:"run_id" json:"run_id"`
	StartedAt      int64  `db:"started_at" json:"started_at"`
	LastTick       uint64 `db:"last_tick" json:"last_tick"`
	Frames         uint64 `db:"frames" json:"frames"`
	TotalMutations uint64 `db:"total_mutations" json:"total_mutations"`
	TotalReseeded  uint64 `db:"total_reseeded" json:"total_reseeded"`
	ClampedFrames  uint64 `db:"clamped_frames" json:"clamped_frames"`
	MaxDiffX       int    `db:"max_diff_x" json:"max_diff_x"`
	MaxDiffY       int    `db:"max_diff_y" json:"max_diff_y"`
	Events         uint64 `db:"events" json:"events"`
}

// RunSummary returns counts and maxima for a run.
func (db *DB) RunSummary(runID string) (*RunSummary, error) {
	var s RunSummary
	err := db.conn.Get(&s, `SELECT
		r.id AS run_id,
		r.started_at,
		r.last_tick,
		COUNT(f.id) AS frames,
		COALESCE(SUM(f.mutations), 0) AS total_mutations,
		COALESCE(SUM(f.reseeded), 0) AS total_reseeded,
		COALESCE(SUM(f.clamped), 0) AS clamped_frames,
		COALESCE(MAX(ABS(f.diff_x)), 0) AS max_diff_x,
		COALESCE(MAX(ABS(f.diff_y)), 0) AS max_diff_y,
		(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id) AS events
		FROM runs r LEFT JOIN frames f ON f.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, runID)
	if err != nil {
		return nil, fmt.Errorf("run summary %s: %w", runID, err)
	}
	return &s, nil
}

// Flush drains the simulation's pending records and events into the run.
func (db *DB) Flush(runID string, sim *engine.Simulation) error {
	frames := sim.DrainFrames()
	if err := db.RecordFrames(runID, frames); err != nil {
		return fmt.Errorf("record frames: %w", err)
	}
	events := sim.DrainEvents()
	if err := db.SaveEvents(runID, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if len(frames) > 0 || len(events) > 0 {
		slog.Debug("diagnostics flushed", "run", runID, "frames", len(frames), "events", len(events))
	}
	return nil
}
