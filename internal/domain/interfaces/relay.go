package interfaces

import (
	"context"

	domaintypes "parley/internal/domain/types"
)

// RelayClient is how the client talks to the relay, all with context. The
// caller's account is implied by its credentials.
type RelayClient interface {
	PublishBundle(
		ctx context.Context,
		bundle domaintypes.PublicBundle,
		pool []domaintypes.OneTimePrekeyPublic,
	) error
	// FetchBundle returns the peer's bundle with a freshly allocated one-time
	// key, or none when the peer's pool is exhausted.
	FetchBundle(ctx context.Context, peer domaintypes.AccountID) (domaintypes.PublicBundle, error)
	AddOneTimeKeys(ctx context.Context, keys []domaintypes.OneTimePrekeyPublic) error
	UpdateSignedPrekey(ctx context.Context, spk domaintypes.SignedPrekeyPublic) error
	DeleteOneTimeKey(ctx context.Context, id domaintypes.OneTimePrekeyID) error
	PrekeyStatus(ctx context.Context) (PrekeyAdvice, error)

	// ListAccounts returns every registered account.
	ListAccounts(ctx context.Context) ([]domaintypes.AccountID, error)
	// PeerIdentity returns peer's registered identity without touching its
	// one-time pool.
	PeerIdentity(ctx context.Context, peer domaintypes.AccountID) (domaintypes.PeerIdentity, error)

	StoreBootstrap(ctx context.Context, env domaintypes.EncryptedEnvelope) error
	FetchBootstrap(
		ctx context.Context,
		from domaintypes.AccountID,
	) (*domaintypes.EncryptedEnvelope, error)
	ConsumeBootstrap(ctx context.Context, id domaintypes.SessionID) error

	SessionInfo(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
	EndSession(ctx context.Context, id domaintypes.SessionID) error

	SendMessage(ctx context.Context, env domaintypes.EncryptedEnvelope) error
	FetchMessages(ctx context.Context, limit int) ([]domaintypes.EncryptedEnvelope, error)
	AckMessages(ctx context.Context, count int) error
}

// PrekeyAdvice is the relay's status report plus what the owner should do.
type PrekeyAdvice struct {
	Status    domaintypes.PrekeyStatus `json:"status"`
	Rotate    bool                     `json:"rotate"`
	Replenish bool                     `json:"replenish"`
}
