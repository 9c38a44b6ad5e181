package store

import (
	"encoding/json"
	"sync"

	"parley/internal/domain"
)

const (
	idFilename = "identity.json.enc"
	idLabel    = "parley identity v2"
)

// IdentityFileStore persists the local identity to disk, sealed under the
// user's passphrase.
type IdentityFileStore struct {
	file doc
	cost scryptCost
	mu   sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{file: docAt(dir, idFilename), cost: defaultCost}
}

// Exists reports whether an identity file is present.
func (s *IdentityFileStore) Exists() bool { return s.file.exists() }

// SaveIdentity writes the encrypted identity to disk.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.IdentityKeyPair) error {
	if passphrase == "" {
		return domain.Invalid("passphrase", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	ct, err := seal(passphrase, idLabel, raw, s.cost)
	if err != nil {
		return err
	}
	return s.file.replace(ct)
}

// LoadIdentity reads and decrypts the identity. A missing file is ErrNotFound.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.IdentityKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.file.bytes()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	if b == nil {
		return domain.IdentityKeyPair{}, domain.ErrNotFound
	}
	pt, err := unseal(passphrase, idLabel, b)
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	var id domain.IdentityKeyPair
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return id, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
