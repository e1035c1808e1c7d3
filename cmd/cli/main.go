package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/neural-chilli/codesworth/internal/parser"
	"github.com/neural-chilli/codesworth/internal/repo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "codesworth",
		Short:         "Codesworth - call-chain analysis for codebases",
		Long:          `Codesworth builds a call graph of a repository, traces execution paths from its entry points and documents them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(entrypointsCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(callersCmd())
	rootCmd.AddCommand(modelsCmd())

	return rootCmd
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func parseCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a source file and show its callable units",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parser.NewParser().ParseFile(cmd.Context(), filePath)
			if err != nil {
				return fmt.Errorf("failed to parse file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File: %s\n", parsed.Path)
			fmt.Fprintf(out, "Language: %s\n", parsed.Language)
			fmt.Fprintf(out, "Units: %d\n\n", countUnits(parsed.Units))
			printUnits(out, parsed.Units, 0)

			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Source file to parse")
	cmd.MarkFlagRequired("file")

	return cmd
}

func countUnits(units []callgraph.Unit) int {
	n := 0
	for _, u := range units {
		n += 1 + countUnits(u.Children)
	}
	return n
}

func printUnits(out io.Writer, units []callgraph.Unit, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, u := range units {
		fmt.Fprintf(out, "%s- %s (%s) [lines %d-%d]\n", indent, u.Name, u.Kind, u.StartLine, u.EndLine)
		if u.Signature != "" {
			fmt.Fprintf(out, "%s    %s\n", indent, u.Signature)
		}
		printUnits(out, u.Children, depth+1)
	}
}

func entrypointsCmd() *cobra.Command {
	var (
		recordsPath string
		minConf     float64
	)

	cmd := &cobra.Command{
		Use:   "entrypoints [path]",
		Short: "Detect the entry points of a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			var (
				files []callgraph.SourceFile
				err   error
			)
			if recordsPath != "" {
				files, err = parser.LoadRecords(recordsPath)
			} else {
				files, err = parser.NewParser().Parse(cmd.Context(), root)
			}
			if err != nil {
				return err
			}

			graph := callgraph.NewBuilder(nil).Build(files)
			entries := callgraph.NewEntryPointDetector(callgraph.NewSourceCache(files)).Detect(graph)

			out := cmd.OutOrStdout()
			shown := 0
			for _, ep := range entries {
				if ep.Confidence < minConf {
					continue
				}
				shown++
				fmt.Fprintf(out, "%-40s %-15s %.2f  %s\n",
					ep.Signature.DisplayName(), ep.Type, ep.Confidence, ep.Signature.FilePath)
			}
			fmt.Fprintf(out, "\n%d entry points (%d methods, %d calls)\n", shown, graph.Len(), len(graph.Edges()))
			return nil
		},
	}

	cmd.Flags().StringVar(&recordsPath, "records", "", "Read front-end records from a JSON file instead of parsing")
	cmd.Flags().Float64Var(&minConf, "min-confidence", 0, "Hide entry points below this confidence")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available from the local Ollama server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client := llm.NewOllamaClient(cfg.LLM.OllamaURL, nil)
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list models: %w\nMake sure Ollama is running: ollama serve", err)
			}

			sort.Strings(models)
			out := cmd.OutOrStdout()
			for _, m := range models {
				marker := " "
				if m == cfg.LLM.OllamaTier1 || m == cfg.LLM.OllamaTier2 {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, m)
			}
			return nil
		},
	}
}

// maskConnectionString hides the password of a connection URL for logging
func maskConnectionString(s string) string {
	scheme := strings.Index(s, "://")
	if scheme < 0 {
		return s
	}
	rest := s[scheme+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return s
	}
	userinfo := rest[:at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return s
	}
	return s[:scheme+3] + userinfo[:colon] + ":****" + rest[at:]
}

// sourceFor picks the analyze target from the positional path and --repo
func sourceFor(path, repoURL string) (string, error) {
	switch {
	case path != "" && repoURL != "":
		return "", fmt.Errorf("give either a path or --repo, not both")
	case repoURL != "":
		if !repo.IsRemote(repoURL) {
			return "", fmt.Errorf("--repo must be a git URL, got %q", repoURL)
		}
		return repoURL, nil
	case path != "":
		return path, nil
	}
	return ".", nil
}
