package api

import (
	"sync"

	"github.com/neural-chilli/codesworth/internal/workspace"
)

// Store keeps the analyses started through the API for the life of the
// process
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*workspace.Workspace
	order []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{byID: make(map[string]*workspace.Workspace)}
}

// Add registers a workspace
func (s *Store) Add(ws *workspace.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ws.ID]; !ok {
		s.order = append(s.order, ws.ID)
	}
	s.byID[ws.ID] = ws
}

// Get returns the workspace with id
func (s *Store) Get(id string) (*workspace.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.byID[id]
	return ws, ok
}

// List returns up to limit workspaces, newest first. limit <= 0 means all.
func (s *Store) List(limit int) []*workspace.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*workspace.Workspace, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.byID[s.order[i]])
	}
	return out
}
