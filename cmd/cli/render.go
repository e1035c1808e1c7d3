package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/neural-chilli/codesworth/internal/engine"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(22)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderSummary formats the outcome of a run for the terminal
func renderSummary(res *engine.Result) string {
	s := res.Statistics

	rows := [][2]string{
		{"Methods", fmt.Sprint(s.TotalMethods)},
		{"Calls", fmt.Sprint(s.TotalCalls)},
		{"Entry points", fmt.Sprint(s.EntryPointsFound)},
		{"Call chains", fmt.Sprint(s.CallChainsTraced)},
		{"Groups", fmt.Sprint(s.GroupsCreated)},
		{"Files", fmt.Sprint(s.FilesAnalyzed)},
		{"Cycles", fmt.Sprint(s.CyclesFound)},
	}
	if s.LLMCallsMade > 0 || s.LLMFailures > 0 {
		rows = append(rows,
			[2]string{"LLM calls", fmt.Sprintf("%d (%d failed)", s.LLMCallsMade, s.LLMFailures)},
			[2]string{"Tokens", fmt.Sprintf("%d in / %d out", s.InputTokens, s.OutputTokens)},
		)
	}
	rows = append(rows, [2]string{"Time", fmt.Sprintf("%dms", s.AnalysisTimeMs)})

	var b strings.Builder
	b.WriteString(titleStyle.Render("Call-chain analysis"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	if res.Revision != "" {
		b.WriteString(labelStyle.Render("Revision"))
		b.WriteString(shortRevision(res.Revision))
		b.WriteString("\n")
	}

	for _, g := range res.Synthesis.CriticalGotchas {
		b.WriteString(warnStyle.Render("! " + g.Description))
		b.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
