package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	root        TEXT NOT NULL,
	revision    TEXT,
	started_at  TEXT NOT NULL,
	stage       TEXT NOT NULL,
	statistics  TEXT NOT NULL,
	synthesis   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS methods (
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	node_key    TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	method_name TEXT NOT NULL,
	class_name  TEXT,
	namespace   TEXT,
	signature   TEXT,
	visibility  TEXT,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	is_async    INTEGER NOT NULL DEFAULT 0,
	complexity  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, node_key)
);

CREATE TABLE IF NOT EXISTS calls (
	run_id         TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	caller_key     TEXT NOT NULL,
	callee_key     TEXT NOT NULL,
	call_site_line INTEGER NOT NULL,
	call_kind      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(run_id, callee_key);

CREATE TABLE IF NOT EXISTS entry_points (
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	node_key    TEXT NOT NULL,
	entry_type  TEXT NOT NULL,
	confidence  REAL NOT NULL,
	rationale   TEXT
);

CREATE TABLE IF NOT EXISTS chain_groups (
	run_id           TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	group_id         TEXT NOT NULL,
	position         INTEGER NOT NULL,
	name             TEXT NOT NULL,
	files            TEXT NOT NULL,
	chain_count      INTEGER NOT NULL,
	total_complexity INTEGER NOT NULL,
	status           TEXT,
	description      TEXT,
	confidence       REAL,
	analysis         TEXT,
	PRIMARY KEY (run_id, group_id)
);
`

// fixed width so that text ordering matches time ordering
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps run history in a local SQLite file
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// RunSummary is one row of run history
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Root       string            `json:"root"`
	Revision   string            `json:"revision,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Stage      string            `json:"stage"`
	Statistics engine.Statistics `json:"statistics"`
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("opened sqlite store")

	return &SQLiteStore{conn: conn, path: path}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// DB returns the underlying connection
func (s *SQLiteStore) DB() *sql.DB {
	return s.conn
}

// Write implements Sink. Writing the same run twice replaces it.
func (s *SQLiteStore) Write(ctx context.Context, res *engine.Result) error {
	stats, err := json.Marshal(res.Statistics)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	synthesis, err := json.Marshal(res.Synthesis)
	if err != nil {
		return fmt.Errorf("failed to encode synthesis: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, res.RunID); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, root, revision, started_at, stage, statistics, synthesis)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Root, res.Revision, res.StartedAt.UTC().Format(sqliteTimeFormat),
		res.Stage.String(), string(stats), string(synthesis),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	rows := collectRows(res)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO methods (run_id, node_key, file_path, method_name, class_name, namespace,
		 signature, visibility, start_line, end_line, is_async, complexity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare methods: %w", err)
	}
	for _, m := range rows.methods {
		if _, err := stmt.ExecContext(ctx, res.RunID, m.Key, m.FilePath, m.MethodName, m.ClassName,
			m.Namespace, m.Signature, m.Visibility, m.StartLine, m.EndLine, m.IsAsync, m.Complexity); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to insert method %s: %w", m.Key, err)
		}
	}
	stmt.Close()

	stmt, err = tx.PrepareContext(ctx,
		`INSERT INTO calls (run_id, caller_key, callee_key, call_site_line, call_kind) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare calls: %w", err)
	}
	for _, c := range rows.calls {
		if _, err := stmt.ExecContext(ctx, res.RunID, c.CallerKey, c.CalleeKey, c.Line, c.Kind); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to insert call: %w", err)
		}
	}
	stmt.Close()

	for _, ep := range rows.entryPoints {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entry_points (run_id, node_key, entry_type, confidence, rationale) VALUES (?, ?, ?, ?, ?)`,
			res.RunID, ep.Key, ep.Type, ep.Confidence, ep.Rationale); err != nil {
			return fmt.Errorf("failed to insert entry point: %w", err)
		}
	}

	for _, g := range rows.groups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chain_groups (run_id, group_id, position, name, files, chain_count, total_complexity,
			 status, description, confidence, analysis)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, g.ID, g.Position, g.Name, g.Files, g.ChainCount, g.TotalComplexity,
			g.Status, g.Description, g.Confidence, g.Analysis); err != nil {
			return fmt.Errorf("failed to insert group %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	log.Debug().
		Str("run_id", res.RunID).
		Int("methods", len(rows.methods)).
		Int("calls", len(rows.calls)).
		Msg("wrote run to sqlite")

	return nil
}

// Runs lists stored runs, newest first
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT run_id, root, COALESCE(revision, ''), started_at, stage, statistics
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			startedAt string
			stats     string
		)
		if err := rows.Scan(&r.RunID, &r.Root, &r.Revision, &startedAt, &r.Stage, &stats); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(sqliteTimeFormat, startedAt)
		if err := json.Unmarshal([]byte(stats), &r.Statistics); err != nil {
			return nil, fmt.Errorf("failed to decode statistics for %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Callers returns the node keys that call the given node in a run
func (s *SQLiteStore) Callers(ctx context.Context, runID, nodeKey string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT caller_key FROM calls WHERE run_id = ? AND callee_key = ? ORDER BY caller_key`,
		runID, nodeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query callers: %w", err)
	}
	defer rows.Close()

	var callers []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		callers = append(callers, key)
	}
	return callers, rows.Err()
}
