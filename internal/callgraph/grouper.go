package callgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// primaryEpsilon is the confidence tolerance for primary entry points
const primaryEpsilon = 0.01

// Group partitions chains by their exact file set. Groups are ordered by
// descending total complexity; ties keep group id order.
func Group(chains []CallChain) []ChainGroup {
	var groups []ChainGroup
	byKey := make(map[string]int)

	for _, chain := range chains {
		key := chain.FileKey()
		i, ok := byKey[key]
		if !ok {
			i = len(groups)
			byKey[key] = i
			groups = append(groups, ChainGroup{
				ID:            GroupID(chain.InvolvedFiles),
				InvolvedFiles: chain.InvolvedFiles,
			})
		}
		groups[i].Chains = append(groups[i].Chains, chain)
	}

	for i := range groups {
		finishGroup(&groups[i])
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalComplexity != groups[j].TotalComplexity {
			return groups[i].TotalComplexity > groups[j].TotalComplexity
		}
		return groups[i].ID < groups[j].ID
	})

	return groups
}

// GroupID derives a stable id from a sorted file set
func GroupID(sortedFiles []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sortedFiles, "\n")))
	return "group-" + hex.EncodeToString(sum[:])[:8]
}

func finishGroup(g *ChainGroup) {
	maxConfidence := 0.0
	for _, c := range g.Chains {
		g.TotalComplexity += c.TotalComplexity
		if c.EntryPoint.Confidence > maxConfidence {
			maxConfidence = c.EntryPoint.Confidence
		}
	}

	seenEntry := make(map[MethodSignature]bool)
	seenMethod := make(map[MethodSignature]bool)
	for _, c := range g.Chains {
		ep := c.EntryPoint
		if math.Abs(ep.Confidence-maxConfidence) < primaryEpsilon && !seenEntry[ep.Signature] {
			seenEntry[ep.Signature] = true
			g.PrimaryEntryPoints = append(g.PrimaryEntryPoints, ep)
		}
		for _, step := range c.Steps {
			if !seenMethod[step.Method] {
				seenMethod[step.Method] = true
				g.AllMethods = append(g.AllMethods, step.Method)
			}
		}
	}

	g.Name = GroupName(g)
}

// GroupName is a human readable label for a group
func GroupName(g *ChainGroup) string {
	if len(g.PrimaryEntryPoints) == 0 {
		return fmt.Sprintf("Group: %d files", len(g.InvolvedFiles))
	}
	names := make([]string, 0, len(g.PrimaryEntryPoints))
	for _, ep := range g.PrimaryEntryPoints {
		names = append(names, ep.Signature.DisplayName())
	}
	return "Group: " + strings.Join(names, ", ")
}

// ComputeGroupStats summarizes a grouping
func ComputeGroupStats(groups []ChainGroup) GroupStats {
	stats := GroupStats{TotalGroups: len(groups)}
	files := make(map[string]bool)
	for _, g := range groups {
		stats.TotalChains += len(g.Chains)
		if len(g.Chains) > stats.LargestGroupSize {
			stats.LargestGroupSize = len(g.Chains)
		}
		for _, f := range g.InvolvedFiles {
			files[f] = true
		}
	}
	stats.TotalFiles = len(files)
	if stats.TotalGroups > 0 {
		stats.AvgChainsPerGroup = float64(stats.TotalChains) / float64(stats.TotalGroups)
	}
	return stats
}
