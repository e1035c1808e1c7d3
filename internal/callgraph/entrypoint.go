package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// annotationWindow is how many lines above a declaration are scanned
const annotationWindow = 5

// annotationMarkers is checked in order; the first marker found on a line wins
var annotationMarkers = []string{
	"@RequestMapping", "@GetMapping", "@PostMapping", "@PutMapping", "@DeleteMapping", "@PatchMapping",
	"@MessageMapping", "@EventHandler", "@EventListener", "@KafkaListener",
	"@Scheduled", "@Test", "@Command",
	"@app.route", "@app.get", "@app.post", "@router.get", "@router.post", "@Router",
	"@celery.task", "@shared_task", "@click.command",
	"app.get", "app.post", "router.get", "router.post",
}

// EntryPointDetector ranks graph nodes as candidate entry points
type EntryPointDetector struct {
	lines SourceLines
}

// NewEntryPointDetector creates a detector. lines may be nil, in which
// case only structural evidence is used.
func NewEntryPointDetector(lines SourceLines) *EntryPointDetector {
	return &EntryPointDetector{lines: lines}
}

// Detect returns entry points sorted by descending confidence
func (d *EntryPointDetector) Detect(g *CallGraph) []EntryPoint {
	var entries []EntryPoint
	index := make(map[MethodSignature]int)

	for _, node := range g.EntryCandidates() {
		index[node.Signature] = len(entries)
		entries = append(entries, scoreStructural(g, node))
	}

	if d.lines != nil {
		for _, node := range g.Nodes() {
			ep, ok := d.annotated(g, node)
			if !ok {
				continue
			}
			if i, exists := index[node.Signature]; exists {
				entries[i] = mergeEntry(entries[i], ep)
				continue
			}
			index[node.Signature] = len(entries)
			entries = append(entries, ep)
		}
	}

	for _, node := range g.Nodes() {
		if node.Signature.MethodName != "main" {
			continue
		}
		if _, exists := index[node.Signature]; exists {
			continue
		}
		index[node.Signature] = len(entries)
		entries = append(entries, EntryPoint{
			Signature:  node.Signature,
			Type:       EntryMain,
			Confidence: 0.9,
			Rationale:  "Named 'main' - application entry point",
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Confidence > entries[j].Confidence
	})

	log.Debug().Int("entry_points", len(entries)).Msg("detected entry points")
	return entries
}

func scoreStructural(g *CallGraph, node *CallNode) EntryPoint {
	name := node.Signature.MethodName
	lower := strings.ToLower(name)
	confidence := 0.5
	entryType := EntryUnknown
	rationale := []string{"No incoming calls, has outgoing calls"}

	switch {
	case name == "main":
		confidence += 0.4
		entryType = EntryMain
		rationale = append(rationale, "Named 'main' - application entry point")
	case isHandlerName(lower):
		confidence += 0.3
		entryType = EntryEventHandler
		rationale = append(rationale, "Named like handler - likely event/message handler")
	case isTestName(lower):
		confidence += 0.2
		entryType = EntryTest
		rationale = append(rationale, "Named like test - test entry point")
	case isPublic(node.Visibility):
		confidence += 0.2
		entryType = EntryPublicAPI
		rationale = append(rationale, "Public visibility - potential library API")
	}

	if node.Complexity > 10 {
		confidence += 0.1
		rationale = append(rationale, "Non-trivial complexity")
	}

	if out := g.OutDegree(node.Signature); out > 3 {
		confidence += 0.1
		rationale = append(rationale, fmt.Sprintf("Calls %d methods", out))
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return EntryPoint{
		Signature:  node.Signature,
		Type:       entryType,
		Confidence: confidence,
		Rationale:  strings.Join(rationale, "; "),
	}
}

func isHandlerName(lower string) bool {
	return strings.Contains(lower, "handle") ||
		strings.Contains(lower, "process") ||
		strings.Contains(lower, "on_") ||
		strings.HasPrefix(lower, "on") ||
		strings.HasSuffix(lower, "handler")
}

func isTestName(lower string) bool {
	return strings.HasPrefix(lower, "test") ||
		strings.HasSuffix(lower, "_test") ||
		strings.Contains(lower, "should_")
}

func isPublic(visibility string) bool {
	switch strings.ToLower(visibility) {
	case "public", "pub", "exported":
		return true
	}
	return false
}

// annotated scans the lines above node's declaration for a marker. The
// scan stops at a line owned by a sibling node.
func (d *EntryPointDetector) annotated(g *CallGraph, node *CallNode) (EntryPoint, bool) {
	path := node.Signature.FilePath
	lines, err := d.lines.Lines(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("skipping annotation scan")
		return EntryPoint{}, false
	}

	for lineNo := node.StartLine - 1; lineNo >= 1 && lineNo >= node.StartLine-annotationWindow; lineNo-- {
		if lineNo > len(lines) {
			continue
		}
		if owner := g.EnclosingNode(path, lineNo); owner != nil && !owner.Contains(node.StartLine) {
			break
		}

		line := lines[lineNo-1]
		for _, marker := range annotationMarkers {
			if !strings.Contains(line, marker) {
				continue
			}
			entryType, confidence := classifyMarker(marker)
			return EntryPoint{
				Signature:  node.Signature,
				Type:       entryType,
				Confidence: confidence,
				Rationale:  "Has annotation: " + marker,
			}, true
		}
	}

	return EntryPoint{}, false
}

func classifyMarker(marker string) (EntryPointType, float64) {
	lower := strings.ToLower(marker)
	switch {
	case strings.Contains(lower, "mapping"), strings.Contains(lower, "route"),
		strings.HasSuffix(lower, ".get"), strings.HasSuffix(lower, ".post"):
		return EntryHTTPEndpoint, 0.9
	case strings.Contains(lower, "message"), strings.Contains(lower, "event"),
		strings.Contains(lower, "listener"):
		return EntryEventHandler, 0.8
	case strings.Contains(lower, "scheduled"), strings.Contains(lower, "task"),
		strings.Contains(lower, "cron"):
		return EntryScheduledTask, 0.8
	case strings.Contains(lower, "test"):
		return EntryTest, 0.7
	case strings.Contains(lower, "command"):
		return EntryCLICommand, 0.8
	}
	return EntryUnknown, 0.6
}

// mergeEntry combines structural and annotation evidence for one node.
// The higher confidence wins and an explicit marker type overrides the
// structural guess.
func mergeEntry(structural, annotated EntryPoint) EntryPoint {
	merged := structural
	if annotated.Confidence > merged.Confidence {
		merged.Confidence = annotated.Confidence
	}
	if annotated.Type != EntryUnknown {
		merged.Type = annotated.Type
	}
	merged.Rationale = structural.Rationale + "; " + annotated.Rationale
	return merged
}
