package interfaces

import domaintypes "parley/internal/domain/types"

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.IdentityKeyPair) error
	LoadIdentity(passphrase string) (domaintypes.IdentityKeyPair, error)
}

// LocalPrekeyStore keeps the private halves of your signed and one-time
// prekeys on the client.
type LocalPrekeyStore interface {
	// SaveSignedPrekey replaces the current signed prekey; the previous one is
	// discarded.
	SaveSignedPrekey(pair domaintypes.SignedPrekeyPair) error
	LoadSignedPrekey() (domaintypes.SignedPrekeyPair, bool, error)

	// SaveOneTimePrekeys merges pairs into the pool. An id that is already
	// present fails with ErrDuplicateOneTimeKey and nothing is written.
	SaveOneTimePrekeys(pairs []domaintypes.OneTimePrekeyPair) error
	LoadOneTimePrekey(id domaintypes.OneTimePrekeyID) (domaintypes.OneTimePrekeyPair, bool, error)
	DeleteOneTimePrekey(id domaintypes.OneTimePrekeyID) error
	ListOneTimePrekeys() ([]domaintypes.OneTimePrekeyPair, error)
}

// HistoryStore keeps the plaintext conversation log on the client.
type HistoryStore interface {
	AppendHistory(entries ...domaintypes.HistoryEntry) error
	// History returns the last limit entries with peer, oldest first. A
	// limit of zero or less returns all of them.
	History(peer domaintypes.AccountID, limit int) ([]domaintypes.HistoryEntry, error)
}

// SessionStore persists sessions (including their secrets) on the client.
type SessionStore interface {
	SaveSession(session domaintypes.Session) error
	LoadSession(id domaintypes.SessionID) (domaintypes.Session, bool, error)
	ListSessions() ([]domaintypes.Session, error)
	DeleteSession(id domaintypes.SessionID) error
}
