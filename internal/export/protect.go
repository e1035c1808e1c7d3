package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnclosedRegion is returned when a protected region has no end marker
var ErrUnclosedRegion = errors.New("unclosed protected region")

const protectedEnd = "<!-- /PROTECTED -->"

var (
	protectedStartRe = regexp.MustCompile(`<!--\s*PROTECTED(?::\s*(.+?))?\s*-->`)
	protectedEndRe   = regexp.MustCompile(`<!--\s*/PROTECTED\s*-->`)
)

// protectedRegion is a hand-written block that survives regeneration
type protectedRegion struct {
	Label   string
	Content string
}

func (r protectedRegion) startMarker() string {
	if r.Label == "" {
		return "<!-- PROTECTED -->"
	}
	return "<!-- PROTECTED: " + r.Label + " -->"
}

func (r protectedRegion) block() string {
	if r.Content == "" {
		return r.startMarker() + "\n" + protectedEnd
	}
	return r.startMarker() + "\n" + r.Content + "\n" + protectedEnd
}

// extractProtected returns the protected regions of a document in order
func extractProtected(content string) ([]protectedRegion, error) {
	var regions []protectedRegion
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines); i++ {
		m := protectedStartRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}

		end := -1
		for j := i + 1; j < len(lines); j++ {
			if protectedEndRe.MatchString(lines[j]) {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("%w starting at line %d", ErrUnclosedRegion, i+1)
		}

		regions = append(regions, protectedRegion{
			Label:   strings.TrimSpace(m[1]),
			Content: strings.Join(lines[i+1:end], "\n"),
		})
		i = end
	}
	return regions, nil
}

// mergeProtected carries the protected regions of existing into generated.
// A region replaces the matching marker pair of the new document; regions
// whose marker is gone are appended at the end.
func mergeProtected(generated, existing string) (string, error) {
	regions, err := extractProtected(existing)
	if err != nil {
		return "", err
	}

	result := generated
	searchFrom := make(map[string]int)
	for _, region := range regions {
		marker := region.startMarker()
		from := searchFrom[marker]

		start := strings.Index(result[from:], marker)
		if start < 0 {
			result = strings.TrimRight(result, "\n") + "\n\n" + region.block() + "\n"
			searchFrom[marker] = len(result)
			continue
		}
		start += from

		end := strings.Index(result[start:], protectedEnd)
		if end < 0 {
			continue
		}
		end += start + len(protectedEnd)

		block := region.block()
		result = result[:start] + block + result[end:]
		searchFrom[marker] = start + len(block)
	}
	return result, nil
}
