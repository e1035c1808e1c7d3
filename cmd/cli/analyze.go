package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/export"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/workspace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	repoURL      string
	recordsPath  string
	maxDepth     int
	mode         string
	languages    []string
	concurrency  int
	useLLM       bool
	tier         int
	tokenLimit   int64
	budgetUSD    float64
	outDir       string
	compress     bool
	noMarkdown   bool
	overwrite    bool
	sqlitePath   string
	postgresURL  string
	neo4j        bool
	workspaceDir string
}

func analyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a repository and document its call chains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runAnalyze(ctx, path, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(res))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.repoURL, "repo", "", "Clone and analyze a remote git repository")
	f.StringVar(&opts.recordsPath, "records", "", "Read front-end records from a JSON file instead of parsing")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "Maximum call chain depth (default from project config)")
	f.StringVar(&opts.mode, "mode", "", "Trace mode: tree or paths")
	f.StringSliceVar(&opts.languages, "languages", nil, "Only analyze these languages")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Groups summarized in parallel")
	f.BoolVar(&opts.useLLM, "llm", false, "Summarize groups with an LLM")
	f.IntVarP(&opts.tier, "tier", "t", 0, "LLM tier (1=fast, 2=balanced, 3=thorough)")
	f.Int64Var(&opts.tokenLimit, "token-limit", 0, "Stop summarizing after this many tokens")
	f.Float64Var(&opts.budgetUSD, "budget", 0, "Stop summarizing after this estimated spend in USD")
	f.StringVarP(&opts.outDir, "out", "o", "", "Output directory (default from project config)")
	f.BoolVar(&opts.compress, "compress", false, "Write zstd-compressed JSON")
	f.BoolVar(&opts.noMarkdown, "no-markdown", false, "Skip the markdown documentation")
	f.BoolVar(&opts.overwrite, "overwrite-docs", false, "Discard PROTECTED blocks in existing markdown")
	f.StringVar(&opts.sqlitePath, "sqlite", "", "Also record the run in this SQLite database")
	f.StringVar(&opts.postgresURL, "postgres", "", "Also record the run in this Postgres database")
	f.BoolVar(&opts.neo4j, "neo4j", false, "Also write the call graph to Neo4j (NEO4J_* settings)")
	f.StringVar(&opts.workspaceDir, "workspace-dir", workspace.DefaultConfig().BaseDir, "Where workspace state is kept")

	return cmd
}

func runAnalyze(ctx context.Context, path string, opts *analyzeOptions) (*engine.Result, error) {
	source, err := sourceFor(path, opts.repoURL)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	wsCfg := &workspace.WorkspaceConfig{
		BaseDir:  opts.workspaceDir,
		GitToken: cfg.GitToken,
	}
	ws, err := workspace.New(source, wsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	var completer llm.Completer
	if opts.useLLM {
		router, err := llm.NewRouter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM router: %w", err)
		}
		if err := router.HealthCheck(); err != nil {
			return nil, fmt.Errorf("LLM not available: %w\nMake sure Ollama is running: ollama serve", err)
		}
		completer = router
	}

	runCfg := &workspace.RunConfig{
		MaxDepth:       opts.maxDepth,
		Mode:           opts.mode,
		MaxContextSize: cfg.Analysis.MaxContextSize,
		Concurrency:    opts.concurrency,
		MaxFileSize:    cfg.Analysis.MaxFileSize,
		Languages:      opts.languages,
		RecordsPath:    opts.recordsPath,
		Summarize:      opts.useLLM,
		Tier:           llm.Tier(opts.tier),
		Budget: llm.BudgetConfig{
			TokenLimit: opts.tokenLimit,
			BudgetUSD:  opts.budgetUSD,
		},
	}

	runner := workspace.NewRunner(ws, completer, wsCfg, runCfg)
	runner.OnPhase = func(ws *workspace.Workspace, phase workspace.Phase) {
		log.Debug().Str("workspace", ws.ID).Str("phase", string(phase)).Msg("workspace phase")
	}
	if err := runner.Initialize(ctx); err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, opts, runner.ProjectConfig(), res.Root)
	if err != nil {
		return nil, err
	}
	defer closeSinks()

	if err := export.WriteAll(ctx, res, sinks...); err != nil {
		return res, fmt.Errorf("failed to write results: %w", err)
	}
	return res, nil
}

// openSinks builds the output sinks for a run. The returned func closes
// the database connections.
func openSinks(ctx context.Context, cfg *config.Config, opts *analyzeOptions, project *config.ProjectConfig, root string) ([]export.Sink, func(), error) {
	if project == nil {
		project = config.DefaultProjectConfig()
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = project.Output.Dir
		if !filepath.IsAbs(outDir) && root != "" {
			outDir = filepath.Join(root, outDir)
		}
	}

	sinks := []export.Sink{
		&export.JSONSink{Dir: outDir, Compress: opts.compress || project.Output.Compress},
	}
	if project.Output.Markdown && !opts.noMarkdown {
		sinks = append(sinks, &export.MarkdownSink{
			Dir:           outDir,
			PreserveEdits: project.Output.PreserveEdits && !opts.overwrite,
		})
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sqlitePath := opts.sqlitePath
	if sqlitePath == "" {
		sqlitePath = cfg.SQLitePath
	}
	if sqlitePath != "" {
		store, err := export.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, func() { store.Close() })
		sinks = append(sinks, store)
	}

	if opts.postgresURL != "" {
		log.Info().Str("database", maskConnectionString(opts.postgresURL)).Msg("connecting to postgres")
		store, err := export.OpenPostgres(ctx, opts.postgresURL)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, store.Close)
		sinks = append(sinks, store)
	}

	if opts.neo4j {
		store, err := export.OpenNeo4j(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { store.Close(context.Background()) })
		sinks = append(sinks, store)
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	log.Debug().Str("out", outDir).Str("sinks", strings.Join(names, ",")).Msg("output configured")

	return sinks, closeAll, nil
}
