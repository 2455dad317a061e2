// Package sessions implements the Session Manager and Session Runner:
// the per-conversation turn loop, event buffer, and reconnect
// resynchronization.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Manager multiplexes many concurrent sessions, creating runners on
// first reference and retaining them until explicit removal.
type Manager struct {
	mu      sync.Mutex // guards only map mutation; never held across a runner call
	runners map[string]*Runner

	newRunner func(session *models.Session) *Runner
	appName   string
}

// NewManager builds a Manager. newRunner constructs a Runner for a
// freshly created session; appName is recorded on every Session and
// should equal the root agent's name.
func NewManager(appName string, newRunner func(session *models.Session) *Runner) *Manager {
	return &Manager{
		runners:   map[string]*Runner{},
		newRunner: newRunner,
		appName:   appName,
	}
}

// GetOrCreate returns the runner for sessionID, creating one (and its
// backing Session) if this is the first reference.
func (m *Manager) GetOrCreate(sessionID string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runners[sessionID]; ok {
		return r
	}
	now := time.Now()
	session := &models.Session{
		ID:        sessionID,
		UserID:    sessionID,
		AppName:   m.appName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r := m.newRunner(session)
	m.runners[sessionID] = r
	return r
}

// Create allocates a fresh session id and returns its runner.
func (m *Manager) Create(name string) *Runner {
	r := m.GetOrCreate(uuid.NewString())
	if name != "" {
		r.Rename(name)
	}
	return r
}

// Get returns the runner for sessionID without creating one.
func (m *Manager) Get(sessionID string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[sessionID]
	return r, ok
}

// Remove deletes a session and its runner.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[sessionID]; !ok {
		return errs.New(errs.KindUnknownResource, "unknown session: "+sessionID)
	}
	delete(m.runners, sessionID)
	return nil
}

// List returns metadata for every known session.
func (m *Manager) List() []models.Session {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	out := make([]models.Session, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.SessionMeta())
	}
	return out
}
