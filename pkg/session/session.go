// Package session implements SessionManager and the per-project Session
// state machine of spec.md §3 and §4.14.
package session

import (
	"sync"
	"time"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/history"
	"github.com/argusci/argus/pkg/knowledge"
	"github.com/argusci/argus/pkg/ports"
)

// State is one of a Session's lifecycle states (spec.md §3).
type State string

const (
	StateInitialized State = "initialized"
	StateBuilt       State = "built"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
)

// transitions is the state DAG from spec.md §3: {initialized->built,
// initialized->stopped, built->running, running->stopped}.
var transitions = map[State]map[State]bool{
	StateInitialized: {StateBuilt: true, StateStopped: true},
	StateBuilt:       {StateRunning: true},
	StateRunning:     {StateStopped: true},
	StateStopped:     {},
}

// Session is a single project's live environment state.
type Session struct {
	ProjectPath string
	ConfigPath  string
	Config      *config.E2EConfig
	NetworkName string
	State       State
	SessionID   string
	CreatedAt   time.Time

	Containers map[string]string // container name -> id
	Mocks      map[string]interface{}

	History   history.Store
	Knowledge *knowledge.Store
}

// Manager owns every live Session, keyed by absolute project path.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ports    *ports.Allocator
}

// NewManager constructs an empty Manager over the given port allocator.
// allocator may be nil (daemon.New passes nil); no port claims are then
// released when a session stops or is removed.
func NewManager(allocator *ports.Allocator) *Manager {
	return &Manager{sessions: make(map[string]*Session), ports: allocator}
}

// Create inserts a fresh Session at StateInitialized, failing with
// SESSION_EXISTS if projectPath is already tracked.
func (m *Manager) Create(projectPath string, cfg *config.E2EConfig, configPath, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[projectPath]; ok {
		return nil, apierr.New(apierr.SessionExists, "session already exists for "+projectPath)
	}

	s := &Session{
		ProjectPath: projectPath,
		ConfigPath:  configPath,
		Config:      cfg,
		NetworkName: cfg.NetworkName(),
		State:       StateInitialized,
		SessionID:   sessionID,
		CreatedAt:   time.Now(),
		Containers:  make(map[string]string),
		Mocks:       make(map[string]interface{}),
	}
	m.sessions[projectPath] = s
	return s, nil
}

// GetOrThrow returns the session for projectPath, or SESSION_NOT_FOUND.
func (m *Manager) GetOrThrow(projectPath string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[projectPath]
	if !ok {
		return nil, apierr.New(apierr.SessionNotFound, "no session for "+projectPath)
	}
	return s, nil
}

// Has reports whether projectPath has a tracked session.
func (m *Manager) Has(projectPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[projectPath]
	return ok
}

// Transition validates newState against the DAG in spec.md §3 and applies
// it, releasing port claims when the destination is a final state
// (stopped).
func (m *Manager) Transition(projectPath string, newState State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[projectPath]
	if !ok {
		return apierr.New(apierr.SessionNotFound, "no session for "+projectPath)
	}

	if !transitions[s.State][newState] {
		return apierr.New(apierr.InvalidState, "cannot transition from "+string(s.State)+" to "+string(newState))
	}

	s.State = newState
	if newState == StateStopped && m.ports != nil {
		m.ports.ReleaseSession(s.SessionID)
	}
	return nil
}

// Remove closes the session's store handles, releases its port claims,
// and untracks it.
func (m *Manager) Remove(projectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[projectPath]
	if !ok {
		return apierr.New(apierr.SessionNotFound, "no session for "+projectPath)
	}

	if s.History != nil {
		_ = s.History.Close()
	}
	if s.Knowledge != nil {
		_ = s.Knowledge.Close()
	}
	if m.ports != nil {
		m.ports.ReleaseSession(s.SessionID)
	}

	delete(m.sessions, projectPath)
	return nil
}

// List returns a snapshot of every tracked session.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
