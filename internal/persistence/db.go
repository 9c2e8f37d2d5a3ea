// Package persistence provides SQLite-based storage for batch results and
// sampled step snapshots.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/evacsim/internal/config"
	"github.com/talgya/evacsim/internal/engine"
)

// DB wraps a SQLite connection for result persistence.
type DB struct {
	conn *sqlx.DB
}

// BatchRecord is one stored batch.
type BatchRecord struct {
	ID           string  `db:"id" json:"id"`
	StartedAt    string  `db:"started_at" json:"started_at"` // RFC 3339, UTC
	Seed         int64   `db:"seed" json:"seed"`
	Runs         int     `db:"runs" json:"runs"`
	ConfigJSON   string  `db:"config_json" json:"-"`
	MeanEvacTime float64 `db:"mean_evac_time" json:"mean_evac_time"`
	StdEvacTime  float64 `db:"std_evac_time" json:"std_evac_time"`
	WallSeconds  float64 `db:"wall_seconds" json:"wall_seconds"`
}

// RunRecord is one stored run.
type RunRecord struct {
	ID          string  `db:"id" json:"id"`
	BatchID     string  `db:"batch_id" json:"batch_id"`
	RunIndex    int     `db:"run_index" json:"run_index"`
	Steps       int     `db:"steps" json:"steps"`
	EvacSteps   int     `db:"evac_steps" json:"evac_steps"`
	EvacTime    float64 `db:"evac_time" json:"evac_time"`
	Evacuated   bool    `db:"evacuated" json:"evacuated"`
	Remaining   int     `db:"remaining" json:"remaining"`
	WallSeconds float64 `db:"wall_seconds" json:"wall_seconds"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
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
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		runs INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		mean_evac_time REAL NOT NULL DEFAULT 0,
		std_evac_time REAL NOT NULL DEFAULT 0,
		wall_seconds REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		evac_steps INTEGER NOT NULL,
		evac_time REAL NOT NULL,
		evacuated INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		wall_seconds REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		step INTEGER NOT NULL,
		occupied INTEGER NOT NULL,
		occupancy_json TEXT NOT NULL,
		dynamic_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(batch_id, run_index, step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartBatch records a new batch and returns its ID.
func (db *DB) StartBatch(cfg config.Config, seed int64) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	id := uuid.NewString()
	_, err = db.conn.Exec(
		"INSERT INTO batches (id, started_at, seed, runs, config_json) VALUES (?, ?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), seed, cfg.Runs, string(cfgJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	if err := db.SaveMeta("last_batch", id); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	return id, nil
}

// FinishBatch stores the aggregate statistics of a batch.
func (db *DB) FinishBatch(id string, report engine.Report) error {
	_, err := db.conn.Exec(
		"UPDATE batches SET runs = ?, mean_evac_time = ?, std_evac_time = ?, wall_seconds = ? WHERE id = ?",
		len(report.Runs), report.MeanEvacTime, report.StdEvacTime, report.WallClock.Seconds(), id,
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", id, err)
	}
	slog.Info("batch saved", "id", id, "runs", len(report.Runs))
	return nil
}

// SaveRun appends one run result to a batch.
func (db *DB) SaveRun(batchID string, res engine.RunResult) error {
	evacuated := 0
	if res.Evacuated {
		evacuated = 1
	}
	_, err := db.conn.Exec(`INSERT INTO runs
		(id, batch_id, run_index, steps, evac_steps, evac_time, evacuated, remaining, wall_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), batchID, res.Index, res.Steps, res.EvacSteps, res.EvacTime,
		evacuated, res.Remaining, res.WallClock.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run %d: %w", res.Index, err)
	}
	return nil
}

// SaveSnapshot stores the grids of one step.
func (db *DB) SaveSnapshot(batchID string, snap engine.Snapshot) error {
	// []uint8 would marshal as base64; store plain 0/1 integers.
	occ := make([]int, len(snap.Occupancy))
	for i, v := range snap.Occupancy {
		occ[i] = int(v)
	}
	occJSON, err := json.Marshal(occ)
	if err != nil {
		return err
	}
	dynJSON, err := json.Marshal(snap.Dynamic)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		"INSERT INTO snapshots (batch_id, run_index, step, occupied, occupancy_json, dynamic_json) VALUES (?, ?, ?, ?, ?, ?)",
		batchID, snap.Run, snap.Step, snap.Occupied, string(occJSON), string(dynJSON),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot run %d step %d: %w", snap.Run, snap.Step, err)
	}
	return nil
}

// Snapshot loads the stored grids of one step.
func (db *DB) Snapshot(batchID string, run, step int) (engine.Snapshot, error) {
	var row struct {
		Occupied      int    `db:"occupied"`
		OccupancyJSON string `db:"occupancy_json"`
		DynamicJSON   string `db:"dynamic_json"`
	}
	err := db.conn.Get(&row,
		"SELECT occupied, occupancy_json, dynamic_json FROM snapshots WHERE batch_id = ? AND run_index = ? AND step = ?",
		batchID, run, step,
	)
	if err != nil {
		return engine.Snapshot{}, err
	}

	snap := engine.Snapshot{Run: run, Step: step, Occupied: row.Occupied}
	var occ []int
	if err := json.Unmarshal([]byte(row.OccupancyJSON), &occ); err != nil {
		return snap, fmt.Errorf("decode occupancy: %w", err)
	}
	snap.Occupancy = make([]uint8, len(occ))
	for i, v := range occ {
		snap.Occupancy[i] = uint8(v)
	}
	if err := json.Unmarshal([]byte(row.DynamicJSON), &snap.Dynamic); err != nil {
		return snap, fmt.Errorf("decode dynamic field: %w", err)
	}
	return snap, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// Batch returns one stored batch.
func (db *DB) Batch(id string) (BatchRecord, error) {
	var b BatchRecord
	err := db.conn.Get(&b, "SELECT * FROM batches WHERE id = ?", id)
	return b, err
}

// BatchConfig decodes the configuration a batch ran with.
func (db *DB) BatchConfig(id string) (config.Config, error) {
	b, err := db.Batch(id)
	if err != nil {
		return config.Config{}, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(b.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config of batch %s: %w", id, err)
	}
	return cfg, nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// BatchRuns returns the runs of one batch in run order.
func (db *DB) BatchRuns(batchID string) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs,
		"SELECT * FROM runs WHERE batch_id = ? ORDER BY run_index",
		batchID,
	)
	return runs, err
}
