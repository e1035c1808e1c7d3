package analyzer

import (
	"context"

	"github.com/neural-chilli/codesworth/internal/callgraph"
)

// Status records how a group analysis was produced
type Status string

const (
	StatusAnalyzed   Status = "analyzed"   // enriched by a summarizer
	StatusStructural Status = "structural" // no summarizer configured
	StatusFailed     Status = "failed"     // summarizer returned an error
	StatusSkipped    Status = "skipped"    // run was cancelled first
)

// Severity of a gotcha
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ComponentInteraction describes how two components talk to each other
type ComponentInteraction struct {
	From        string `json:"from_component"`
	To          string `json:"to_component"`
	Type        string `json:"interaction_type"`
	Description string `json:"description"`
}

// DomainInsight is a domain-level observation about a group
type DomainInsight struct {
	Category string   `json:"category"`
	Insight  string   `json:"insight"`
	Evidence []string `json:"evidence,omitempty"`
}

// Gotcha is a potential issue worth flagging to readers
type Gotcha struct {
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Severity        Severity `json:"severity"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
}

// GroupAnalysis is the per-group result of the analyzer
type GroupAnalysis struct {
	GroupID                string                 `json:"group_id"`
	Status                 Status                 `json:"status"`
	Description            string                 `json:"description"`
	EntryPointDescriptions map[string]string      `json:"entry_point_descriptions,omitempty"`
	ComponentInteractions  []ComponentInteraction `json:"component_interactions,omitempty"`
	DomainInsights         []DomainInsight        `json:"domain_insights,omitempty"`
	Gotchas                []Gotcha               `json:"gotchas,omitempty"`
	Confidence             float64                `json:"confidence"`
	Truncated              bool                   `json:"truncated"`
	Error                  string                 `json:"error,omitempty"`
}

// Analyzed reports whether a summarizer enriched the analysis
func (a *GroupAnalysis) Analyzed() bool {
	return a.Status == StatusAnalyzed
}

// SystemSynthesis folds every group analysis into a system-level view
type SystemSynthesis struct {
	OverallDescription  string   `json:"overall_description"`
	KeyThemes           []string `json:"key_themes"`
	CriticalGotchas     []Gotcha `json:"critical_gotchas"`
	TotalGroupsAnalyzed int      `json:"total_groups_analyzed"`
	OverallConfidence   float64  `json:"overall_confidence"`
}

// Excerpt is a bounded slice of source sent to the summarizer
type Excerpt struct {
	Method    callgraph.MethodSignature `json:"method"`
	StartLine int                       `json:"start_line"`
	EndLine   int                       `json:"end_line"`
	Code      string                    `json:"code"`
}

// SummaryRequest is everything a summarizer gets to see about one group
type SummaryRequest struct {
	GroupID       string                 `json:"group_id"`
	GroupName     string                 `json:"group_name"`
	EntryPoints   []callgraph.EntryPoint `json:"entry_points"`
	Chains        []string               `json:"chains"`
	InvolvedFiles []string               `json:"involved_files"`
	Excerpts      []Excerpt              `json:"excerpts"`
	Truncated     bool                   `json:"truncated"`
}

// Summary is what a summarizer returns for a group
type Summary struct {
	Description            string
	EntryPointDescriptions map[string]string
	ComponentInteractions  []ComponentInteraction
	DomainInsights         []DomainInsight
	Gotchas                []Gotcha
	Confidence             float64
	InputTokens            int
	OutputTokens           int
}

// Summarizer produces free-text understanding for a group of call chains
type Summarizer interface {
	Summarize(ctx context.Context, req *SummaryRequest) (*Summary, error)
}
