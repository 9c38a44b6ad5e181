package store

import (
	"sync"

	"parley/internal/domain"
)

const prekeysFilename = "prekeys.json"

// prekeyFile is everything PrekeyFileStore keeps. One-time pairs stay in the
// order they were generated.
type prekeyFile struct {
	SignedPrekey *domain.SignedPrekeyPair  `json:"signed_prekey,omitempty"`
	OneTime      []domain.OneTimePrekeyPair `json:"one_time_prekeys"`
}

// PrekeyFileStore persists the private halves of the signed prekey and the
// one-time pool to disk.
type PrekeyFileStore struct {
	file doc
	mu   sync.Mutex
}

// NewPrekeyFileStore returns a PrekeyFileStore rooted at dir.
func NewPrekeyFileStore(dir string) *PrekeyFileStore {
	return &PrekeyFileStore{file: docAt(dir, prekeysFilename)}
}

func (s *PrekeyFileStore) load() (prekeyFile, error) {
	var f prekeyFile
	err := s.file.decode(&f)
	return f, err
}

// SaveSignedPrekey replaces the current signed prekey.
func (s *PrekeyFileStore) SaveSignedPrekey(pair domain.SignedPrekeyPair) error {
	if pair.Pub.IsZero() || pair.Priv.IsZero() {
		return domain.Invalid("signed_prekey", "must not be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	pair.Signature = append([]byte(nil), pair.Signature...)
	f.SignedPrekey = &pair
	return s.file.encode(f)
}

// LoadSignedPrekey returns the current signed prekey and whether one exists.
func (s *PrekeyFileStore) LoadSignedPrekey() (domain.SignedPrekeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil || f.SignedPrekey == nil {
		return domain.SignedPrekeyPair{}, false, err
	}
	return *f.SignedPrekey, true, nil
}

// SaveOneTimePrekeys appends pairs to the pool. Any id collision, against the
// stored pool or within pairs, rejects the whole batch.
func (s *PrekeyFileStore) SaveOneTimePrekeys(pairs []domain.OneTimePrekeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	seen := make(map[domain.OneTimePrekeyID]struct{}, len(f.OneTime)+len(pairs))
	for _, p := range f.OneTime {
		seen[p.ID] = struct{}{}
	}
	for _, p := range pairs {
		if p.ID == "" {
			return domain.Invalid("one_time_prekey.id", "must not be empty")
		}
		if _, dup := seen[p.ID]; dup {
			return domain.ErrDuplicateOneTimeKey
		}
		seen[p.ID] = struct{}{}
	}
	f.OneTime = append(f.OneTime, pairs...)
	return s.file.encode(f)
}

// LoadOneTimePrekey returns the pair with id, if still present.
func (s *PrekeyFileStore) LoadOneTimePrekey(id domain.OneTimePrekeyID) (domain.OneTimePrekeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.OneTimePrekeyPair{}, false, err
	}
	for _, p := range f.OneTime {
		if p.ID == id {
			return p, true, nil
		}
	}
	return domain.OneTimePrekeyPair{}, false, nil
}

// DeleteOneTimePrekey removes the pair with id. Deleting an absent id is
// ErrNotFound.
func (s *PrekeyFileStore) DeleteOneTimePrekey(id domain.OneTimePrekeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	for i, p := range f.OneTime {
		if p.ID == id {
			f.OneTime = append(f.OneTime[:i], f.OneTime[i+1:]...)
			return s.file.encode(f)
		}
	}
	return domain.ErrNotFound
}

// ListOneTimePrekeys returns the remaining pool in generation order.
func (s *PrekeyFileStore) ListOneTimePrekeys() ([]domain.OneTimePrekeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]domain.OneTimePrekeyPair(nil), f.OneTime...), nil
}

// Compile-time assertion that PrekeyFileStore implements domain.LocalPrekeyStore.
var _ domain.LocalPrekeyStore = (*PrekeyFileStore)(nil)
