package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"parley/internal/domain"
	"parley/internal/protocol/lifecycle"
)

type account struct {
	bundle  domain.PublicBundle
	updated time.Time
	pool    []domain.OneTimePrekeyPublic
}

// Store keeps every relay collection in process memory. It is safe for
// concurrent use; contents are lost on restart.
type Store struct {
	mu         sync.Mutex
	accounts   map[domain.AccountID]*account
	bootstraps map[domain.SessionID]domain.EncryptedEnvelope
	queues     map[domain.AccountID][]domain.EncryptedEnvelope
	sessions   *lifecycle.Registry
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		accounts:   make(map[domain.AccountID]*account),
		bootstraps: make(map[domain.SessionID]domain.EncryptedEnvelope),
		queues:     make(map[domain.AccountID][]domain.EncryptedEnvelope),
	}
	s.sessions = lifecycle.NewRegistry(s.purge)
	return s
}

var (
	_ domain.PrekeyStore        = (*Store)(nil)
	_ domain.BootstrapTransport = (*Store)(nil)
	_ domain.SessionRegistry    = (*Store)(nil)
	_ domain.MessageQueue       = (*Store)(nil)
)

// ---------- PrekeyStore ----------

func (s *Store) PublishBundle(
	_ context.Context,
	acct domain.AccountID,
	bundle domain.PublicBundle,
	pool []domain.OneTimePrekeyPublic,
) error {
	bundle.Account = acct
	bundle.OneTimePrekey = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct] = &account{
		bundle:  bundle,
		updated: time.Now().UTC(),
		pool:    append([]domain.OneTimePrekeyPublic(nil), pool...),
	}
	return nil
}

func (s *Store) GetBundle(_ context.Context, acct domain.AccountID) (domain.PublicBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return domain.PublicBundle{}, domain.ErrNotFound
	}
	return a.bundle, nil
}

// AllocateOneTimeKey hands out the oldest key and removes it under the lock.
func (s *Store) AllocateOneTimeKey(_ context.Context, acct domain.AccountID) (*domain.OneTimePrekeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if len(a.pool) == 0 {
		return nil, nil
	}
	k := a.pool[0]
	a.pool = a.pool[1:]
	return &k, nil
}

func (s *Store) DeleteOneTimeKey(_ context.Context, acct domain.AccountID, id domain.OneTimePrekeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return domain.ErrNotFound
	}
	for i, k := range a.pool {
		if k.ID == id {
			a.pool = append(a.pool[:i:i], a.pool[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) AddOneTimeKeys(_ context.Context, acct domain.AccountID, keys []domain.OneTimePrekeyPublic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return domain.ErrNotFound
	}
	have := make(map[domain.OneTimePrekeyID]struct{}, len(a.pool))
	for _, k := range a.pool {
		have[k.ID] = struct{}{}
	}
	for _, k := range keys {
		if _, dup := have[k.ID]; dup {
			return domain.ErrDuplicateOneTimeKey
		}
		have[k.ID] = struct{}{}
	}
	a.pool = append(a.pool, keys...)
	return nil
}

func (s *Store) UpdateSignedPrekey(
	_ context.Context,
	acct domain.AccountID,
	spk domain.SignedPrekeyPublic,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return domain.ErrNotFound
	}
	a.bundle.SignedPrekey = spk.Pub
	a.bundle.SignedPrekeySignature = append([]byte(nil), spk.Signature...)
	a.updated = at.UTC()
	return nil
}

func (s *Store) Status(_ context.Context, acct domain.AccountID) (domain.PrekeyStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return domain.PrekeyStatus{}, domain.ErrNotFound
	}
	return domain.PrekeyStatus{SignedPrekeyUpdated: a.updated, OneTimePrekeys: len(a.pool)}, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.AccountID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AccountID, 0, len(s.accounts))
	for acct := range s.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ---------- BootstrapTransport ----------

func (s *Store) Store(_ context.Context, id domain.SessionID, env domain.EncryptedEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstraps[id] = env
	return nil
}

func (s *Store) FetchLatestFor(ctx context.Context, acct domain.AccountID) (*domain.EncryptedEnvelope, error) {
	return s.FetchLatestFrom(ctx, acct, "")
}

// FetchLatestFrom returns the newest bootstrap for acct; an empty sender
// matches any.
func (s *Store) FetchLatestFrom(
	_ context.Context,
	acct domain.AccountID,
	sender domain.AccountID,
) (*domain.EncryptedEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []domain.EncryptedEnvelope
	for _, env := range s.bootstraps {
		if env.Receiver != acct || (sender != "" && env.Sender != sender) {
			continue
		}
		matches = append(matches, env)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	latest := matches[0]
	return &latest, nil
}

func (s *Store) MarkConsumed(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bootstraps, id)
	return nil
}

// ---------- SessionRegistry ----------

func (s *Store) Open(_ context.Context, id domain.SessionID, initiator, responder domain.AccountID) error {
	return s.sessions.Open(id, initiator, responder)
}

func (s *Store) Establish(_ context.Context, id domain.SessionID) error {
	return s.sessions.Establish(id)
}

func (s *Store) SetActive(_ context.Context, id domain.SessionID, acct domain.AccountID, active bool) (bool, error) {
	return s.sessions.SetActive(id, acct, active)
}

func (s *Store) Get(_ context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	return s.sessions.Get(id)
}

func (s *Store) purge(id domain.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bootstraps, id)
}

// ---------- MessageQueue ----------

func (s *Store) Enqueue(_ context.Context, env domain.EncryptedEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[env.Receiver] = append(s.queues[env.Receiver], env)
	return nil
}

func (s *Store) Fetch(_ context.Context, acct domain.AccountID, limit int) ([]domain.EncryptedEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[acct]
	if limit > 0 && limit < len(q) {
		q = q[:limit]
	}
	return append([]domain.EncryptedEnvelope(nil), q...), nil
}

func (s *Store) Ack(_ context.Context, acct domain.AccountID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[acct]
	if count >= len(q) {
		delete(s.queues, acct)
		return nil
	}
	if count > 0 {
		s.queues[acct] = append([]domain.EncryptedEnvelope(nil), q[count:]...)
	}
	return nil
}
