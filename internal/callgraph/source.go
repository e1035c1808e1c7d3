package callgraph

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// SourceLines provides the lines of a source file
type SourceLines interface {
	Lines(path string) ([]string, error)
}

// SourceCache serves lines from front-end records and falls back to disk
// for anything it was not given. It is safe for concurrent use.
type SourceCache struct {
	mu    sync.Mutex
	lines map[string][]string
}

// NewSourceCache creates a cache seeded with the source of files
func NewSourceCache(files []SourceFile) *SourceCache {
	c := &SourceCache{lines: make(map[string][]string, len(files))}
	for _, f := range files {
		if f.Source != "" {
			c.lines[f.Path] = strings.Split(f.Source, "\n")
		}
	}
	return c
}

// Lines returns the lines of path
func (c *SourceCache) Lines(path string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lines, ok := c.lines[path]; ok {
		return lines, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	c.lines[path] = lines
	return lines, nil
}

// Excerpt returns lines start..end (1-based, inclusive), clamped to the file
func (c *SourceCache) Excerpt(path string, start, end int) (string, error) {
	lines, err := c.Lines(path)
	if err != nil {
		return "", err
	}
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", nil
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}
