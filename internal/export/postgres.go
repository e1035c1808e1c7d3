package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/rs/zerolog/log"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cw_runs (
	run_id      UUID PRIMARY KEY,
	root        TEXT NOT NULL,
	revision    TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	stage       TEXT NOT NULL,
	statistics  JSONB NOT NULL,
	synthesis   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS cw_methods (
	run_id      UUID NOT NULL REFERENCES cw_runs(run_id) ON DELETE CASCADE,
	node_key    TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	method_name TEXT NOT NULL,
	class_name  TEXT,
	namespace   TEXT,
	signature   TEXT,
	visibility  TEXT,
	start_line  INT NOT NULL,
	end_line    INT NOT NULL,
	is_async    BOOLEAN NOT NULL DEFAULT FALSE,
	complexity  INT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, node_key)
);

CREATE TABLE IF NOT EXISTS cw_calls (
	run_id         UUID NOT NULL REFERENCES cw_runs(run_id) ON DELETE CASCADE,
	caller_key     TEXT NOT NULL,
	callee_key     TEXT NOT NULL,
	call_site_line INT NOT NULL,
	call_kind      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cw_calls_callee ON cw_calls(run_id, callee_key);

CREATE TABLE IF NOT EXISTS cw_entry_points (
	run_id      UUID NOT NULL REFERENCES cw_runs(run_id) ON DELETE CASCADE,
	node_key    TEXT NOT NULL,
	entry_type  TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	rationale   TEXT
);

CREATE TABLE IF NOT EXISTS cw_groups (
	run_id           UUID NOT NULL REFERENCES cw_runs(run_id) ON DELETE CASCADE,
	group_id         TEXT NOT NULL,
	position         INT NOT NULL,
	name             TEXT NOT NULL,
	files            JSONB NOT NULL,
	chain_count      INT NOT NULL,
	total_complexity INT NOT NULL,
	status           TEXT,
	description      TEXT,
	confidence       DOUBLE PRECISION,
	analysis         JSONB,
	PRIMARY KEY (run_id, group_id)
);
`

// PostgresStore writes runs to Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("host", config.ConnConfig.Host).Msg("connected to database")

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// HealthCheck verifies database connectivity
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Write implements Sink. Writing the same run twice replaces it.
func (s *PostgresStore) Write(ctx context.Context, res *engine.Result) error {
	stats, err := json.Marshal(res.Statistics)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	synthesis, err := json.Marshal(res.Synthesis)
	if err != nil {
		return fmt.Errorf("failed to encode synthesis: %w", err)
	}

	rows := collectRows(res)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cw_runs WHERE run_id = $1`, res.RunID); err != nil {
			return fmt.Errorf("failed to clear run: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO cw_runs (run_id, root, revision, started_at, stage, statistics, synthesis)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.RunID, res.Root, res.Revision, res.StartedAt, res.Stage.String(), stats, synthesis,
		); err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range rows.methods {
			batch.Queue(
				`INSERT INTO cw_methods (run_id, node_key, file_path, method_name, class_name, namespace,
				 signature, visibility, start_line, end_line, is_async, complexity)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				 ON CONFLICT (run_id, node_key) DO NOTHING`,
				res.RunID, m.Key, m.FilePath, m.MethodName, m.ClassName, m.Namespace,
				m.Signature, m.Visibility, m.StartLine, m.EndLine, m.IsAsync, m.Complexity)
		}
		for _, c := range rows.calls {
			batch.Queue(
				`INSERT INTO cw_calls (run_id, caller_key, callee_key, call_site_line, call_kind)
				 VALUES ($1, $2, $3, $4, $5)`,
				res.RunID, c.CallerKey, c.CalleeKey, c.Line, c.Kind)
		}
		for _, ep := range rows.entryPoints {
			batch.Queue(
				`INSERT INTO cw_entry_points (run_id, node_key, entry_type, confidence, rationale)
				 VALUES ($1, $2, $3, $4, $5)`,
				res.RunID, ep.Key, ep.Type, ep.Confidence, ep.Rationale)
		}
		for _, g := range rows.groups {
			var analysis any
			if g.Analysis != "" {
				analysis = g.Analysis
			}
			batch.Queue(
				`INSERT INTO cw_groups (run_id, group_id, position, name, files, chain_count, total_complexity,
				 status, description, confidence, analysis)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				res.RunID, g.ID, g.Position, g.Name, g.Files, g.ChainCount, g.TotalComplexity,
				g.Status, g.Description, g.Confidence, analysis)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write rows: %w", err)
		}

		log.Debug().
			Str("run_id", res.RunID).
			Int("statements", batch.Len()).
			Msg("wrote run to postgres")
		return nil
	})
}

// RunCount returns how many runs are stored
func (s *PostgresStore) RunCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cw_runs`).Scan(&n)
	return n, err
}
