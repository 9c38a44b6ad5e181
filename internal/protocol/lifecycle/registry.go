package lifecycle

import (
	"sync"

	"parley/internal/domain"
)

// Registry owns every live Record keyed by session id. All mutation goes
// through its methods; a session reaching Terminated is purged.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*Record
	onPurge  func(domain.SessionID)
}

// NewRegistry returns an empty registry. onPurge, if set, runs after a
// session is removed, outside the registry lock.
func NewRegistry(onPurge func(domain.SessionID)) *Registry {
	return &Registry{sessions: make(map[domain.SessionID]*Record), onPurge: onPurge}
}

// Open registers a new pending session.
func (g *Registry) Open(id domain.SessionID, initiator, responder domain.AccountID) error {
	rec, err := NewRecord(id, initiator, responder)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; ok {
		return domain.Invalid("session id", "already registered")
	}
	g.sessions[id] = rec
	return nil
}

// Establish marks the session Established.
func (g *Registry) Establish(id domain.SessionID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	return rec.Establish()
}

// SetActive updates one participant's flag and purges the session when both
// flags are false.
func (g *Registry) SetActive(id domain.SessionID, account domain.AccountID, active bool) (bool, error) {
	g.mu.Lock()
	rec, ok := g.sessions[id]
	if !ok {
		g.mu.Unlock()
		return false, domain.ErrNotFound
	}
	terminated, err := rec.SetActive(account, active)
	if err != nil || !terminated {
		g.mu.Unlock()
		return terminated, err
	}
	delete(g.sessions, id)
	g.mu.Unlock()

	if g.onPurge != nil {
		g.onPurge(id)
	}
	return true, nil
}

// Get returns a snapshot, or ErrNotFound once purged.
func (g *Registry) Get(id domain.SessionID) (domain.SessionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.sessions[id]
	if !ok {
		return domain.SessionInfo{}, domain.ErrNotFound
	}
	return rec.Info(), nil
}

// Len returns the number of live sessions.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}
