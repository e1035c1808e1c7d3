package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neural-chilli/codesworth/internal/engine"
	"github.com/neural-chilli/codesworth/internal/repo"
)

const stateFile = "workspace.json"

// Workspace is one analysis target: a local tree or a remote repository
// checked out for the run
type Workspace struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	RepoURL   string    `json:"repo_url,omitempty"`
	RepoPath  string    `json:"repo_path"`
	Branch    string    `json:"branch,omitempty"`
	CommitSHA string    `json:"commit_sha,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	State *WorkspaceState `json:"state"`

	result *engine.Result
	path   string // empty for in-memory workspaces
	mu     sync.RWMutex
}

// WorkspaceState tracks a run through its phases
type WorkspaceState struct {
	Phase       Phase              `json:"phase"`
	RunID       string             `json:"run_id,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Statistics  *engine.Statistics `json:"statistics,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Phase is the coarse lifecycle of a workspace
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseCloning   Phase = "cloning"
	PhaseAnalyzing Phase = "analyzing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Done reports whether the phase is terminal
func (p Phase) Done() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// WorkspaceConfig holds configuration for workspace operations
type WorkspaceConfig struct {
	// BaseDir holds persisted workspaces. Empty keeps workspaces in memory.
	BaseDir string
	// CloneDir receives remote checkouts. It defaults to the workspace
	// directory, or the system temp directory for in-memory workspaces.
	CloneDir string
	GitToken string
}

// DefaultConfig returns default workspace configuration
func DefaultConfig() *WorkspaceConfig {
	homeDir, _ := os.UserHomeDir()
	return &WorkspaceConfig{
		BaseDir: filepath.Join(homeDir, ".codesworth", "workspaces"),
	}
}

// New creates a workspace for source, which is either a local directory or
// a git URL
func New(source string, cfg *WorkspaceConfig) (*Workspace, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	id := uuid.New().String()[:8]
	now := time.Now()
	ws := &Workspace{
		ID:        id,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
		State:     &WorkspaceState{Phase: PhaseInit},
	}

	if cfg.BaseDir != "" {
		ws.path = filepath.Join(cfg.BaseDir, id)
		if err := os.MkdirAll(ws.path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	if repo.IsRemote(source) {
		ws.RepoURL = source
	} else {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", source, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", source, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", source)
		}
		ws.RepoPath = abs
	}

	if err := ws.Save(); err != nil {
		return nil, err
	}
	return ws, nil
}

// Load loads a persisted workspace
func Load(wsPath string) (*Workspace, error) {
	data, err := os.ReadFile(filepath.Join(wsPath, stateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace state: %w", err)
	}

	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to parse workspace state: %w", err)
	}
	if ws.State == nil {
		ws.State = &WorkspaceState{Phase: PhaseInit}
	}

	ws.path = wsPath
	return &ws, nil
}

// LoadByID loads a workspace by ID
func LoadByID(id string, cfg *WorkspaceConfig) (*Workspace, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return Load(filepath.Join(cfg.BaseDir, id))
}

// Save persists workspace state to disk. In-memory workspaces are not saved.
func (ws *Workspace) Save() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.UpdatedAt = time.Now()
	if ws.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace: %w", err)
	}

	if err := os.WriteFile(filepath.Join(ws.path, stateFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write workspace state: %w", err)
	}
	return nil
}

// Path returns the workspace root directory, or "" for in-memory workspaces
func (ws *Workspace) Path() string {
	return ws.path
}

// Remote reports whether the workspace analyzes a cloned repository
func (ws *Workspace) Remote() bool {
	return ws.RepoURL != ""
}

// SetPhase updates the workspace phase
func (ws *Workspace) SetPhase(phase Phase) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.State.Phase = phase
	now := time.Now()
	switch {
	case phase == PhaseCloning || phase == PhaseAnalyzing:
		if ws.State.StartedAt == nil {
			ws.State.StartedAt = &now
		}
	case phase.Done():
		ws.State.CompletedAt = &now
	}
}

// Checkout returns the local path and git position of the workspace
func (ws *Workspace) Checkout() (path, branch, commit string) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.RepoPath, ws.Branch, ws.CommitSHA
}

// Phase returns the current phase
func (ws *Workspace) Phase() Phase {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.State.Phase
}

// Fail records err and moves the workspace to PhaseFailed
func (ws *Workspace) Fail(err error) {
	ws.mu.Lock()
	ws.State.Error = err.Error()
	ws.mu.Unlock()
	ws.SetPhase(PhaseFailed)
}

// Complete attaches the result of a run and moves to PhaseCompleted
func (ws *Workspace) Complete(res *engine.Result) {
	ws.mu.Lock()
	ws.result = res
	stats := res.Statistics
	ws.State.RunID = res.RunID
	ws.State.Stage = res.Stage.String()
	ws.State.Statistics = &stats
	ws.mu.Unlock()
	ws.SetPhase(PhaseCompleted)
}

// Result returns the run result, nil until the workspace completes.
// Results are not persisted with the workspace state.
func (ws *Workspace) Result() *engine.Result {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.result
}

// Snapshot returns a copy of the current state
func (ws *Workspace) Snapshot() WorkspaceState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return *ws.State
}

// ListWorkspaces returns persisted workspaces, newest first
func ListWorkspaces(cfg *WorkspaceConfig) ([]*Workspace, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	entries, err := os.ReadDir(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Workspace{}, nil
		}
		return nil, err
	}

	workspaces := make([]*Workspace, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			ws, err := Load(filepath.Join(cfg.BaseDir, entry.Name()))
			if err == nil {
				workspaces = append(workspaces, ws)
			}
		}
	}

	sort.Slice(workspaces, func(i, j int) bool {
		return workspaces[i].CreatedAt.After(workspaces[j].CreatedAt)
	})
	return workspaces, nil
}
