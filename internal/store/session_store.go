package store

import (
	"sort"
	"sync"

	"parley/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore persists local session records, secrets included, to disk.
type SessionFileStore struct {
	file doc
	mu   sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{file: docAt(dir, sessionsFilename)}
}

func (s *SessionFileStore) load() (map[domain.SessionID]domain.Session, error) {
	sessions := map[domain.SessionID]domain.Session{}
	err := s.file.decode(&sessions)
	return sessions, err
}

// SaveSession inserts or replaces the record for session.ID.
func (s *SessionFileStore) SaveSession(session domain.Session) error {
	if session.ID == "" {
		return domain.Invalid("session.id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return err
	}
	sessions[session.ID] = session
	return s.file.encode(sessions)
}

// LoadSession retrieves a stored session by id.
func (s *SessionFileStore) LoadSession(id domain.SessionID) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return domain.Session{}, false, err
	}
	session, ok := sessions[id]
	return session, ok, nil
}

// ListSessions returns every stored session, newest first.
func (s *SessionFileStore) ListSessions() ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteSession removes the record for id. Removing an absent id is a no-op.
func (s *SessionFileStore) DeleteSession(id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := sessions[id]; !ok {
		return nil
	}
	delete(sessions, id)
	return s.file.encode(sessions)
}

// Compile-time assertion that SessionFileStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionFileStore)(nil)
