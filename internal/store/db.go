package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"go-reconcile-pipeline/internal/model"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// DB is the sqlite run ledger
type DB struct {
	conn *sql.DB
}

// Open opens the ledger and creates tables if not exists
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
		error_message TEXT,
		created_at DATETIME
	);
	`
	progressTable := `
	CREATE TABLE IF NOT EXISTS stage_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
		stage TEXT,
		status TEXT,
		started_at DATETIME,
		ended_at DATETIME,
		records_processed INTEGER,
		error_count INTEGER
	);
	`
	logTable := `
	CREATE TABLE IF NOT EXISTS pipeline_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
		stage TEXT,
		level TEXT,
		message TEXT,
		details TEXT,
		created_at DATETIME
	);
	`

	for _, ddl := range []string{runTable, errorTable, progressTable, logTable} {
		if _, err := conn.Exec(ddl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create ledger schema: %w", err)
		}
	}

	return &DB{conn: conn}, nil
}

// Close closes the ledger
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveRun stores a new pending run
func (db *DB) SaveRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, specJSON, model.RunStatusPending, now, now)
	return err
}

// SaveRunError records a fatal error for a run
func (db *DB) SaveRunError(runID string, err error) error {
	if err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := db.conn.Exec(`INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
		runID, err.Error(), now)
	return e
}

// UpdateRunStatus updates run status
func (db *DB) UpdateRunStatus(runID string, status string) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveStageProgress records a stage transition
func (db *DB) SaveStageProgress(runID, stage, status string, startedAt, endedAt *time.Time, records, errorCount int) error {
	_, err := db.conn.Exec(`INSERT INTO stage_progress (run_id, stage, status, started_at, ended_at, records_processed, error_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, status, nullTime(startedAt), nullTime(endedAt), records, errorCount)
	return err
}

// SavePipelineLog stores a stage log line with structured details
func (db *DB) SavePipelineLog(runID, stage, level, message string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`INSERT INTO pipeline_logs (run_id, stage, level, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, level, message, string(detailsJSON), time.Now().UTC())
	return err
}

// ListRuns returns all runs with basic info
func (db *DB) ListRuns() ([]map[string]interface{}, error) {
	rows, err := db.conn.Query(`SELECT id, status, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []map[string]interface{}{}
	for rows.Next() {
		var id, status string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, map[string]interface{}{
			"id":        id,
			"status":    status,
			"createdAt": createdAt,
			"updatedAt": updatedAt,
		})
	}
	return runs, rows.Err()
}

// GetRun fetches full run spec and status
func (db *DB) GetRun(runID string) (map[string]interface{}, error) {
	var specJSON string
	var status string
	var createdAt, updatedAt time.Time

	err := db.conn.QueryRow(`SELECT spec, status, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&specJSON, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var spec model.RunSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":        runID,
		"spec":      spec,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
	}, nil
}

// GetRunErrors returns the fatal errors recorded for a run
func (db *DB) GetRunErrors(runID string) ([]map[string]interface{}, error) {
	rows, err := db.conn.Query(`SELECT error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []map[string]interface{}{}
	for rows.Next() {
		var msg string
		var createdAt time.Time
		if err := rows.Scan(&msg, &createdAt); err != nil {
			return nil, err
		}
		errs = append(errs, map[string]interface{}{
			"message":   msg,
			"createdAt": createdAt,
		})
	}
	return errs, rows.Err()
}

// GetStageProgress returns the stage transitions of a run in order
func (db *DB) GetStageProgress(runID string) ([]map[string]interface{}, error) {
	rows, err := db.conn.Query(`SELECT stage, status, started_at, ended_at, records_processed, error_count FROM stage_progress WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := []map[string]interface{}{}
	for rows.Next() {
		var stage, status string
		var startedAt, endedAt sql.NullTime
		var records, errorCount int
		if err := rows.Scan(&stage, &status, &startedAt, &endedAt, &records, &errorCount); err != nil {
			return nil, err
		}
		entry := map[string]interface{}{
			"stage":             stage,
			"status":            status,
			"records_processed": records,
			"error_count":       errorCount,
		}
		if startedAt.Valid {
			entry["started_at"] = startedAt.Time
		}
		if endedAt.Valid {
			entry["ended_at"] = endedAt.Time
		}
		progress = append(progress, entry)
	}
	return progress, rows.Err()
}

// GetPipelineLogs returns up to limit log lines of a run, oldest first
func (db *DB) GetPipelineLogs(runID string, limit int) ([]map[string]interface{}, error) {
	rows, err := db.conn.Query(`SELECT stage, level, message, details, created_at FROM pipeline_logs WHERE run_id = ? ORDER BY id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []map[string]interface{}{}
	for rows.Next() {
		var stage, level, message, detailsJSON string
		var createdAt time.Time
		if err := rows.Scan(&stage, &level, &message, &detailsJSON, &createdAt); err != nil {
			return nil, err
		}
		var details map[string]interface{}
		_ = json.Unmarshal([]byte(detailsJSON), &details)
		logs = append(logs, map[string]interface{}{
			"stage":     stage,
			"level":     level,
			"message":   message,
			"details":   details,
			"createdAt": createdAt,
		})
	}
	return logs, rows.Err()
}

// DeleteRun removes a run; related rows cascade
func (db *DB) DeleteRun(runID string) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
