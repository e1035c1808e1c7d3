package export

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/rs/zerolog/log"
)

// Neo4jStore loads a run's call graph into Neo4j with batched UNWIND
// queries. Nodes are keyed by run so several runs can live side by side.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// OpenNeo4j connects to Neo4j and creates the indexes the loader needs
func OpenNeo4j(ctx context.Context, uri, user, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}

	s := &Neo4jStore{driver: driver, database: database}
	if err := s.createIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	log.Info().Str("uri", uri).Msg("connected to neo4j")

	return s, nil
}

func (s *Neo4jStore) Name() string { return "neo4j" }

// Close releases the driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) queryOptions() []neo4j.ExecuteQueryConfigurationOption {
	if s.database == "" {
		return nil
	}
	return []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithDatabase(s.database)}
}

func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer, s.queryOptions()...)
	return err
}

func (s *Neo4jStore) createIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX cw_run_id IF NOT EXISTS FOR (n:Run) ON (n.run_id)",
		"CREATE INDEX cw_method_key IF NOT EXISTS FOR (n:Method) ON (n.run_id, n.key)",
		"CREATE INDEX cw_group_id IF NOT EXISTS FOR (n:ChainGroup) ON (n.run_id, n.group_id)",
	}
	for _, q := range indexes {
		if err := s.run(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Write implements Sink. Any earlier copy of the run is removed first.
func (s *Neo4jStore) Write(ctx context.Context, res *engine.Result) error {
	rows := collectRows(res)

	if err := s.run(ctx,
		`MATCH (n {run_id: $run_id}) DETACH DELETE n`,
		map[string]any{"run_id": res.RunID}); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}

	if err := s.run(ctx,
		`MERGE (r:Run {run_id: $run_id})
		 SET r.root = $root, r.revision = $revision, r.stage = $stage,
		     r.total_methods = $methods, r.total_calls = $calls`,
		map[string]any{
			"run_id":   res.RunID,
			"root":     res.Root,
			"revision": res.Revision,
			"stage":    res.Stage.String(),
			"methods":  res.Statistics.TotalMethods,
			"calls":    res.Statistics.TotalCalls,
		}); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}

	methods := make([]map[string]any, 0, len(rows.methods))
	for _, m := range rows.methods {
		methods = append(methods, map[string]any{
			"key": m.Key, "name": m.MethodName, "class": m.ClassName,
			"namespace": m.Namespace, "file": m.FilePath, "signature": m.Signature,
			"start": m.StartLine, "end": m.EndLine, "async": m.IsAsync,
			"complexity": m.Complexity, "visibility": m.Visibility,
		})
	}
	if err := s.run(ctx,
		`UNWIND $batch AS row
		 MERGE (n:Method {run_id: $run_id, key: row.key})
		 SET n.name = row.name, n.class_name = row.class, n.namespace = row.namespace,
		     n.file = row.file, n.signature = row.signature, n.start_line = row.start,
		     n.end_line = row.end, n.is_async = row.async, n.complexity = row.complexity,
		     n.visibility = row.visibility`,
		map[string]any{"run_id": res.RunID, "batch": methods}); err != nil {
		return fmt.Errorf("failed to load methods: %w", err)
	}

	calls := make([]map[string]any, 0, len(rows.calls))
	for _, c := range rows.calls {
		calls = append(calls, map[string]any{
			"caller": c.CallerKey, "callee": c.CalleeKey, "line": c.Line, "kind": c.Kind,
		})
	}
	if err := s.run(ctx,
		`UNWIND $batch AS row
		 MATCH (a:Method {run_id: $run_id, key: row.caller})
		 MATCH (b:Method {run_id: $run_id, key: row.callee})
		 MERGE (a)-[c:CALLS {line: row.line}]->(b)
		 SET c.kind = row.kind`,
		map[string]any{"run_id": res.RunID, "batch": calls}); err != nil {
		return fmt.Errorf("failed to load calls: %w", err)
	}

	entries := make([]map[string]any, 0, len(rows.entryPoints))
	for _, ep := range rows.entryPoints {
		entries = append(entries, map[string]any{
			"key": ep.Key, "type": ep.Type, "confidence": ep.Confidence, "rationale": ep.Rationale,
		})
	}
	if err := s.run(ctx,
		`UNWIND $batch AS row
		 MATCH (n:Method {run_id: $run_id, key: row.key})
		 SET n:EntryPoint, n.entry_type = row.type, n.confidence = row.confidence,
		     n.rationale = row.rationale`,
		map[string]any{"run_id": res.RunID, "batch": entries}); err != nil {
		return fmt.Errorf("failed to mark entry points: %w", err)
	}

	groups := make([]map[string]any, 0, len(rows.groups))
	for _, g := range rows.groups {
		groups = append(groups, map[string]any{
			"id": g.ID, "name": g.Name, "files": g.FileList, "methods": g.MethodKeys,
			"chains": g.ChainCount, "complexity": g.TotalComplexity, "status": g.Status,
			"description": g.Description, "confidence": g.Confidence,
		})
	}
	if err := s.run(ctx,
		`UNWIND $batch AS row
		 MERGE (g:ChainGroup {run_id: $run_id, group_id: row.id})
		 SET g.name = row.name, g.files = row.files, g.chain_count = row.chains,
		     g.total_complexity = row.complexity, g.status = row.status,
		     g.description = row.description, g.confidence = row.confidence
		 WITH g, row
		 MATCH (r:Run {run_id: $run_id})
		 MERGE (r)-[:HAS_GROUP]->(g)
		 WITH g, row
		 UNWIND row.methods AS key
		 MATCH (m:Method {run_id: $run_id, key: key})
		 MERGE (g)-[:INCLUDES]->(m)`,
		map[string]any{"run_id": res.RunID, "batch": groups}); err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	log.Debug().
		Str("run_id", res.RunID).
		Int("methods", len(methods)).
		Int("calls", len(calls)).
		Int("groups", len(groups)).
		Msg("loaded run into neo4j")

	return nil
}

// MethodCount returns how many Method nodes exist for a run
func (s *Neo4jStore) MethodCount(ctx context.Context, runID string) (int64, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver,
		`MATCH (n:Method {run_id: $run_id}) RETURN count(n) AS c`,
		map[string]any{"run_id": runID}, neo4j.EagerResultTransformer, s.queryOptions()...)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	c, _, err := neo4j.GetRecordValue[int64](result.Records[0], "c")
	return c, err
}
