package interfaces

import (
	"context"

	domaintypes "parley/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.IdentityKeyPair,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.IdentityKeyPair, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// PrekeyService generates, publishes and maintains your prekeys.
type PrekeyService interface {
	GenerateAndStorePrekeys(passphrase string, count int) (domaintypes.PublicBundle, error)
	LoadPublicBundle(passphrase string, account domaintypes.AccountID) (domaintypes.PublicBundle, error)
	Register(ctx context.Context, passphrase string, account domaintypes.AccountID) error
	Maintain(ctx context.Context, passphrase string, force bool) (MaintenanceReport, error)
}

// MaintenanceReport says what Maintain did.
type MaintenanceReport struct {
	Rotated bool
	Added   int
}

// SessionService establishes, uses and tears down sessions.
type SessionService interface {
	Select(ctx context.Context, passphrase string, peer domaintypes.AccountID) (SelectResult, error)
	Initiate(ctx context.Context, passphrase string, peer domaintypes.AccountID) (domaintypes.Session, error)
	Accept(ctx context.Context, passphrase string, peer domaintypes.AccountID) (*AcceptResult, error)
	Send(ctx context.Context, peer domaintypes.AccountID, plaintext []byte) error
	Receive(ctx context.Context, limit int) ([]domaintypes.DecryptedMessage, error)
	End(ctx context.Context, peer domaintypes.AccountID) error
	History(peer domaintypes.AccountID, limit int) ([]domaintypes.HistoryEntry, error)
	Peers(ctx context.Context) ([]domaintypes.AccountID, error)
	PeerFingerprint(ctx context.Context, peer domaintypes.AccountID) (domaintypes.Fingerprint, error)
}

// SelectResult describes what Select ended up doing.
type SelectResult struct {
	Session domaintypes.Session
	// Action is one of "reused", "accepted" or "initiated".
	Action string
	Accept *AcceptResult
}

// AcceptResult is the responder's outcome. Session is Established even when
// the bootstrap plaintext failed to open; DecryptErr reports that case.
type AcceptResult struct {
	Session    domaintypes.Session
	Plaintext  []byte
	DecryptErr error
}
