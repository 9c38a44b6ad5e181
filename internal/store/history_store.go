package store

import (
	"sync"

	"parley/internal/domain"
)

const (
	historyFilename = "history.json"

	// historyPerPeer caps how many entries are kept for each peer; older ones
	// are dropped on append.
	historyPerPeer = 1000
)

// HistoryFileStore keeps decrypted conversations, grouped by peer, in one
// file next to the session records.
type HistoryFileStore struct {
	file doc
	mu   sync.Mutex
}

// NewHistoryFileStore returns a HistoryFileStore rooted at dir.
func NewHistoryFileStore(dir string) *HistoryFileStore {
	return &HistoryFileStore{file: docAt(dir, historyFilename)}
}

func (s *HistoryFileStore) load() (map[domain.AccountID][]domain.HistoryEntry, error) {
	log := map[domain.AccountID][]domain.HistoryEntry{}
	err := s.file.decode(&log)
	return log, err
}

// AppendHistory adds entries in the order given.
func (s *HistoryFileStore) AppendHistory(entries ...domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Peer == "" {
			return domain.Invalid("history.peer", "must not be empty")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load()
	if err != nil {
		return err
	}
	for _, e := range entries {
		e.Body = append([]byte(nil), e.Body...)
		log[e.Peer] = append(log[e.Peer], e)
		if n := len(log[e.Peer]); n > historyPerPeer {
			log[e.Peer] = log[e.Peer][n-historyPerPeer:]
		}
	}
	return s.file.encode(log)
}

// History returns the most recent limit entries with peer, oldest first.
func (s *HistoryFileStore) History(peer domain.AccountID, limit int) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load()
	if err != nil {
		return nil, err
	}
	entries := log[peer]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Compile-time assertion that HistoryFileStore implements domain.HistoryStore.
var _ domain.HistoryStore = (*HistoryFileStore)(nil)
