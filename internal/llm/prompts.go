package llm

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/neural-chilli/codesworth/internal/analyzer"
)

// Prompt templates for call-chain summarization

const SystemPromptGroupSummary = `You are a senior engineer writing documentation for a codebase you are reading for the first time.
You are given a group of call chains that start at entry points and share the same files.
Explain what the group does for the system, not how each line works.

Respond with a single JSON object:
{
  "description": "two or three sentences on the purpose of the group",
  "entry_point_descriptions": {"<entry point name>": "one sentence on what triggers it and what it achieves"},
  "component_interactions": [{"from_component": "", "to_component": "", "interaction_type": "", "description": ""}],
  "domain_insights": [{"category": "", "insight": "", "evidence": ["file:method"]}],
  "gotchas": [{"category": "", "description": "", "severity": "info|warning|critical", "suggested_action": ""}],
  "confidence": 0.0
}
Only report gotchas you can point to in the code shown. Output ONLY the JSON.`

// GroupSummaryPrompt renders the user message for one group
func GroupSummaryPrompt(req *analyzer.SummaryRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Group: %s (%s)\n\n", req.GroupName, req.GroupID)

	b.WriteString("Entry points:\n")
	for _, ep := range req.EntryPoints {
		fmt.Fprintf(&b, "- %s in %s (%s, confidence %.2f): %s\n",
			ep.Signature.DisplayName(), ep.Signature.FilePath, ep.Type, ep.Confidence, ep.Rationale)
	}

	b.WriteString("\nCall chains:\n")
	for _, chain := range req.Chains {
		b.WriteString(chain)
		b.WriteString("\n")
	}

	b.WriteString("Files involved:\n")
	for _, f := range req.InvolvedFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	if len(req.Excerpts) > 0 {
		b.WriteString("\nSource:\n")
		for _, ex := range req.Excerpts {
			lang := strings.TrimPrefix(filepath.Ext(ex.Method.FilePath), ".")
			fmt.Fprintf(&b, "\n%s (%s:%d-%d)\n```%s\n%s\n```\n",
				ex.Method.DisplayName(), ex.Method.FilePath, ex.StartLine, ex.EndLine, lang, ex.Code)
		}
	}
	if req.Truncated {
		b.WriteString("\nSome source was left out to fit the context budget.\n")
	}

	return b.String()
}

// StripCodeFence removes a surrounding markdown code fence, with or without
// a language tag
func StripCodeFence(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		// drop the language tag on the opening fence
		if idx := strings.IndexByte(response, '\n'); idx >= 0 && !strings.ContainsAny(response[:idx], "{[") {
			response = response[idx+1:]
		}
	}

	response = strings.TrimSuffix(strings.TrimSpace(response), "```")

	return strings.TrimSpace(response)
}

// ExtractJSONObject returns the outermost {...} in response, or "" if
// there is none
func ExtractJSONObject(response string) string {
	response = StripCodeFence(response)
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return ""
	}
	return response[start : end+1]
}
