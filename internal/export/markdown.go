package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/neural-chilli/codesworth/internal/callgraph"
	"github.com/neural-chilli/codesworth/internal/engine"
)

const overviewTemplate = `# System Overview - Call Chain Analysis

Generated: {{.Generated}}
Analysis Statistics: {{.Stats.TotalMethods}} methods, {{.Stats.CallChainsTraced}} call chains, {{.Stats.GroupsCreated}} groups

## System Understanding

{{.Synthesis.OverallDescription}}
{{if .Synthesis.KeyThemes}}
### Key Themes
{{range .Synthesis.KeyThemes}}
- {{.}}{{end}}
{{end}}{{if .Synthesis.CriticalGotchas}}
### Critical Gotchas
{{range .Synthesis.CriticalGotchas}}
- **{{.Category}}**: {{.Description}}{{end}}
{{end}}
## Entry Points

These are the main ways users and external systems interact with this codebase:
{{range .EntryPoints}}
### {{.Signature.DisplayName}} ({{.Type}})

**File**: {{.Signature.FilePath}}
**Confidence**: {{printf "%.2f" .Confidence}}
**Reasoning**: {{.Rationale}}
{{end}}
## Execution Path Groups

Related execution paths grouped by the files they involve:
{{range .Groups}}
### {{.Name}}

- **Chains**: {{.Chains}}
- **Files**: {{.Files}}
- **Complexity**: {{.Complexity}}
{{- if .Purpose}}
- **Purpose**: {{.Purpose}}{{end}}

[View detailed analysis](./groups/{{.ID}}.md)
{{end}}
## Notes

<!-- PROTECTED: notes -->
<!-- /PROTECTED -->
`

const groupTemplate = `# {{.Group.Name}}

**Group ID**: {{.Group.ID}}
**Status**: {{.Analysis.Status}}
**Analysis Confidence**: {{printf "%.2f" .Analysis.Confidence}}

## What This Code Does

{{.Analysis.Description}}
{{if .Analysis.Gotchas}}
## Gotchas
{{range .Analysis.Gotchas}}
- **{{.Severity}}** {{.Category}}: {{.Description}}{{if .SuggestedAction}} ({{.SuggestedAction}}){{end}}{{end}}
{{end}}
## Execution Paths
{{range $i, $chain := .Group.Chains}}
### Path {{inc $i}}: {{$chain.EntryPoint.Signature.DisplayName}} (confidence: {{printf "%.2f" $chain.EntryPoint.Confidence}})

{{range $chain.Steps}}{{indent .Depth}}{{.Depth}}. {{.Method.DisplayName}} ({{base .Method.FilePath}}:{{.CallSiteLine}})
{{end}}{{end}}
## Files Involved
{{range .Group.InvolvedFiles}}
- {{.}}{{end}}

## Notes

<!-- PROTECTED: notes -->
<!-- /PROTECTED -->
`

var markdownFuncs = template.FuncMap{
	"inc":    func(i int) int { return i + 1 },
	"indent": func(depth int) string { return strings.Repeat("  ", depth) },
	"base":   filepath.Base,
}

var (
	overviewTmpl = template.Must(template.New("overview").Funcs(markdownFuncs).Parse(overviewTemplate))
	groupTmpl    = template.Must(template.New("group").Funcs(markdownFuncs).Parse(groupTemplate))
)

// MarkdownSink writes README.md plus one page per group under groups/.
// With PreserveEdits set, blocks between <!-- PROTECTED[: label] --> and
// <!-- /PROTECTED --> in the previous pages are carried over.
type MarkdownSink struct {
	Dir           string
	PreserveEdits bool
}

func (s *MarkdownSink) Name() string { return "markdown" }

type groupLine struct {
	ID         string
	Name       string
	Chains     int
	Files      int
	Complexity int
	Purpose    string
}

// Write implements Sink
func (s *MarkdownSink) Write(ctx context.Context, res *engine.Result) error {
	groupsDir := filepath.Join(s.Dir, "groups")
	if err := os.MkdirAll(groupsDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	lines := make([]groupLine, 0, len(res.Groups))
	for i, g := range res.Groups {
		line := groupLine{
			ID:         g.ID,
			Name:       g.Name,
			Chains:     len(g.Chains),
			Files:      len(g.InvolvedFiles),
			Complexity: g.TotalComplexity,
		}
		if a, ok := res.AnalysisFor(i); ok {
			line.Purpose = purpose(a.Description)
		}
		lines = append(lines, line)
	}

	err := s.render(filepath.Join(s.Dir, "README.md"), overviewTmpl, map[string]any{
		"Generated":   res.StartedAt.UTC().Format(time.RFC3339),
		"Stats":       res.Statistics,
		"Synthesis":   res.Synthesis,
		"EntryPoints": res.EntryPoints,
		"Groups":      lines,
	})
	if err != nil {
		return err
	}

	for i := range res.Groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, ok := res.AnalysisFor(i)
		if !ok {
			a = analyzer.StructuralAnalysis(&res.Groups[i])
		}
		path := filepath.Join(groupsDir, res.Groups[i].ID+".md")
		if err := s.render(path, groupTmpl, struct {
			Group    *callgraph.ChainGroup
			Analysis analyzer.GroupAnalysis
		}{&res.Groups[i], a}); err != nil {
			return err
		}
	}

	return nil
}

func (s *MarkdownSink) render(path string, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	content := buf.String()

	if s.PreserveEdits {
		existing, err := os.ReadFile(path)
		switch {
		case err == nil:
			content, err = mergeProtected(content, string(existing))
			if err != nil {
				return fmt.Errorf("failed to preserve edits in %s: %w", filepath.Base(path), err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// purpose is the first sentence of a description
func purpose(description string) string {
	description = strings.TrimSpace(description)
	if idx := strings.Index(description, ". "); idx >= 0 {
		return description[:idx+1]
	}
	return description
}
