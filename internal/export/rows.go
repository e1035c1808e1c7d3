package export

import (
	"encoding/json"

	"github.com/neural-chilli/codesworth/internal/engine"
)

// Flattened rows shared by the SQL and graph sinks

type methodRow struct {
	Key        string
	FilePath   string
	MethodName string
	ClassName  string
	Namespace  string
	Signature  string
	Visibility string
	StartLine  int
	EndLine    int
	IsAsync    bool
	Complexity int
}

type callRow struct {
	CallerKey string
	CalleeKey string
	Line      int
	Kind      string
}

type entryPointRow struct {
	Key        string
	Type       string
	Confidence float64
	Rationale  string
}

type groupRow struct {
	ID              string
	Position        int
	Name            string
	Files           string // JSON array
	FileList        []string
	MethodKeys      []string
	ChainCount      int
	TotalComplexity int
	Status          string
	Description     string
	Confidence      float64
	Analysis        string // JSON object
}

type resultRows struct {
	methods     []methodRow
	calls       []callRow
	entryPoints []entryPointRow
	groups      []groupRow
}

func collectRows(res *engine.Result) resultRows {
	var rows resultRows

	if res.Graph != nil {
		for _, n := range res.Graph.Nodes() {
			rows.methods = append(rows.methods, methodRow{
				Key:        nodeKey(n.Signature),
				FilePath:   n.Signature.FilePath,
				MethodName: n.Signature.MethodName,
				ClassName:  n.Signature.ClassName,
				Namespace:  n.Signature.Namespace,
				Signature:  n.Signature.RawSignature,
				Visibility: n.Visibility,
				StartLine:  n.StartLine,
				EndLine:    n.EndLine,
				IsAsync:    n.IsAsync,
				Complexity: n.Complexity,
			})
		}
		for _, e := range res.Graph.Edges() {
			rows.calls = append(rows.calls, callRow{
				CallerKey: nodeKey(e.Caller),
				CalleeKey: nodeKey(e.Callee),
				Line:      e.CallSiteLine,
				Kind:      string(e.CallKind),
			})
		}
	}

	for _, ep := range res.EntryPoints {
		rows.entryPoints = append(rows.entryPoints, entryPointRow{
			Key:        nodeKey(ep.Signature),
			Type:       string(ep.Type),
			Confidence: ep.Confidence,
			Rationale:  ep.Rationale,
		})
	}

	for i, g := range res.Groups {
		files, _ := json.Marshal(g.InvolvedFiles)
		row := groupRow{
			ID:              g.ID,
			Position:        i,
			Name:            g.Name,
			Files:           string(files),
			FileList:        g.InvolvedFiles,
			ChainCount:      len(g.Chains),
			TotalComplexity: g.TotalComplexity,
		}
		for _, m := range g.AllMethods {
			row.MethodKeys = append(row.MethodKeys, nodeKey(m))
		}
		if a, ok := res.AnalysisFor(i); ok {
			analysis, _ := json.Marshal(a)
			row.Status = string(a.Status)
			row.Description = a.Description
			row.Confidence = a.Confidence
			row.Analysis = string(analysis)
		}
		rows.groups = append(rows.groups, row)
	}

	return rows
}
