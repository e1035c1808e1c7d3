package analyzer

import (
	"sort"
	"sync"
)

// DefaultMaxContextSize is the default request budget in estimated tokens
const DefaultMaxContextSize = 1_000_000

// charsPerToken is the rough size estimate used for budgeting
const charsPerToken = 4

// RunContext holds state shared by every worker of a single analysis run.
// A new one must be created per run so nothing leaks between runs.
type RunContext struct {
	mu             sync.Mutex
	cache          map[string]GroupAnalysis
	visited        map[string]bool
	calls          int
	failures       int
	inputTokens    int
	outputTokens   int
	maxContextSize int
}

// NewRunContext creates a run context. A non-positive size means
// DefaultMaxContextSize.
func NewRunContext(maxContextSize int) *RunContext {
	if maxContextSize <= 0 {
		maxContextSize = DefaultMaxContextSize
	}
	return &RunContext{
		cache:          make(map[string]GroupAnalysis),
		visited:        make(map[string]bool),
		maxContextSize: maxContextSize,
	}
}

// MaxContextSize returns the request budget in estimated tokens
func (r *RunContext) MaxContextSize() int {
	return r.maxContextSize
}

func (r *RunContext) cached(groupID string) (GroupAnalysis, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.cache[groupID]
	return a, ok
}

func (r *RunContext) store(a GroupAnalysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[a.GroupID] = a
}

func (r *RunContext) markVisited(files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range files {
		r.visited[f] = true
	}
}

func (r *RunContext) recordCall(s *Summary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err != nil {
		r.failures++
		return
	}
	r.inputTokens += s.InputTokens
	r.outputTokens += s.OutputTokens
}

// VisitedFiles returns the files whose source was sent to a summarizer
func (r *RunContext) VisitedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.visited))
	for f := range r.visited {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Usage reports summarizer calls, failures and token counts for the run
func (r *RunContext) Usage() (calls, failures, inputTokens, outputTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.failures, r.inputTokens, r.outputTokens
}
