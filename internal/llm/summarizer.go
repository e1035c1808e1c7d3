package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neural-chilli/codesworth/internal/analyzer"
	"github.com/rs/zerolog/log"
)

// fallbackConfidence is used when the model answered in prose instead of
// the requested JSON
const fallbackConfidence = 0.6

// GroupSummarizer asks an LLM to summarize one chain group
type GroupSummarizer struct {
	client    Completer
	tier      Tier
	maxTokens int
}

// NewGroupSummarizer creates a summarizer. maxTokens <= 0 uses 2048.
func NewGroupSummarizer(client Completer, tier Tier, maxTokens int) *GroupSummarizer {
	if tier == 0 {
		tier = Tier1
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &GroupSummarizer{client: client, tier: tier, maxTokens: maxTokens}
}

// groupSummaryJSON is the shape the prompt asks for
type groupSummaryJSON struct {
	Description            string                          `json:"description"`
	EntryPointDescriptions map[string]string               `json:"entry_point_descriptions"`
	ComponentInteractions  []analyzer.ComponentInteraction `json:"component_interactions"`
	DomainInsights         []analyzer.DomainInsight        `json:"domain_insights"`
	Gotchas                []analyzer.Gotcha               `json:"gotchas"`
	Confidence             *float64                        `json:"confidence"`
}

// Summarize implements analyzer.Summarizer
func (s *GroupSummarizer) Summarize(ctx context.Context, req *analyzer.SummaryRequest) (*analyzer.Summary, error) {
	resp, err := s.client.Complete(ctx, &Request{
		Tier:   s.tier,
		System: SystemPromptGroupSummary,
		Messages: []Message{
			{Role: "user", Content: GroupSummaryPrompt(req)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize group %s: %w", req.GroupID, err)
	}

	summary := ParseGroupSummary(resp.Content)
	if summary == nil {
		return nil, fmt.Errorf("summarize group %s: empty response", req.GroupID)
	}
	summary.InputTokens = resp.InputTokens
	summary.OutputTokens = resp.OutputTokens

	log.Debug().
		Str("group", req.GroupID).
		Str("model", resp.Model).
		Int("gotchas", len(summary.Gotchas)).
		Msg("group summarized")

	return summary, nil
}

// ParseGroupSummary reads a model response. JSON is preferred; anything
// else becomes the description at reduced confidence. Returns nil for an
// empty response.
func ParseGroupSummary(content string) *analyzer.Summary {
	raw := ExtractJSONObject(content)
	if raw != "" {
		var parsed groupSummaryJSON
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Description != "" {
			summary := &analyzer.Summary{
				Description:            strings.TrimSpace(parsed.Description),
				EntryPointDescriptions: parsed.EntryPointDescriptions,
				ComponentInteractions:  parsed.ComponentInteractions,
				DomainInsights:         parsed.DomainInsights,
				Gotchas:                normalizeGotchas(parsed.Gotchas),
				Confidence:             fallbackConfidence,
			}
			if parsed.Confidence != nil {
				summary.Confidence = *parsed.Confidence
			}
			return summary
		}
	}

	text := StripCodeFence(content)
	if text == "" {
		return nil
	}
	return &analyzer.Summary{Description: text, Confidence: fallbackConfidence}
}

func normalizeGotchas(gotchas []analyzer.Gotcha) []analyzer.Gotcha {
	for i := range gotchas {
		switch sev := analyzer.Severity(strings.ToLower(string(gotchas[i].Severity))); sev {
		case analyzer.SeverityInfo, analyzer.SeverityWarning, analyzer.SeverityCritical:
			gotchas[i].Severity = sev
		case "high", "error":
			gotchas[i].Severity = analyzer.SeverityCritical
		default:
			gotchas[i].Severity = analyzer.SeverityInfo
		}
	}
	return gotchas
}
