package interfaces

import (
	"context"
	"time"

	domaintypes "parley/internal/domain/types"
)

// PrekeyStore holds the public halves of every account's key bundle on the
// relay side.
type PrekeyStore interface {
	// PublishBundle replaces the stored bundle and one-time pool for account.
	PublishBundle(
		ctx context.Context,
		account domaintypes.AccountID,
		bundle domaintypes.PublicBundle,
		pool []domaintypes.OneTimePrekeyPublic,
	) error
	// GetBundle returns the stored bundle without allocating a one-time key.
	GetBundle(ctx context.Context, account domaintypes.AccountID) (domaintypes.PublicBundle, error)
	// AllocateOneTimeKey atomically selects and removes one key. It returns
	// (nil, nil) when the pool is empty.
	AllocateOneTimeKey(
		ctx context.Context,
		account domaintypes.AccountID,
	) (*domaintypes.OneTimePrekeyPublic, error)
	// DeleteOneTimeKey removes a key by id; ErrNotFound when already gone.
	DeleteOneTimeKey(
		ctx context.Context,
		account domaintypes.AccountID,
		id domaintypes.OneTimePrekeyID,
	) error
	// AddOneTimeKeys appends to the pool.
	AddOneTimeKeys(
		ctx context.Context,
		account domaintypes.AccountID,
		keys []domaintypes.OneTimePrekeyPublic,
	) error
	// UpdateSignedPrekey replaces the signed prekey and stamps the update time.
	UpdateSignedPrekey(
		ctx context.Context,
		account domaintypes.AccountID,
		spk domaintypes.SignedPrekeyPublic,
		at time.Time,
	) error
	// Status reports signed-prekey age and remaining pool size.
	Status(ctx context.Context, account domaintypes.AccountID) (domaintypes.PrekeyStatus, error)
	// ListAccounts returns every account with a published bundle, sorted.
	ListAccounts(ctx context.Context) ([]domaintypes.AccountID, error)
}

// BootstrapTransport keeps initial envelopes until the responder fetches them.
type BootstrapTransport interface {
	Store(ctx context.Context, id domaintypes.SessionID, env domaintypes.EncryptedEnvelope) error
	// FetchLatestFor returns the most recent bootstrap addressed to account,
	// or (nil, nil).
	FetchLatestFor(
		ctx context.Context,
		account domaintypes.AccountID,
	) (*domaintypes.EncryptedEnvelope, error)
	// FetchLatestFrom narrows FetchLatestFor to one sender.
	FetchLatestFrom(
		ctx context.Context,
		account domaintypes.AccountID,
		sender domaintypes.AccountID,
	) (*domaintypes.EncryptedEnvelope, error)
	MarkConsumed(ctx context.Context, id domaintypes.SessionID) error
}

// SessionRegistry tracks the per-participant activity flags of every session.
type SessionRegistry interface {
	Open(
		ctx context.Context,
		id domaintypes.SessionID,
		initiator domaintypes.AccountID,
		responder domaintypes.AccountID,
	) error
	Establish(ctx context.Context, id domaintypes.SessionID) error
	// SetActive writes only the caller's flag. terminated is true when both
	// flags are false and the session has been purged.
	SetActive(
		ctx context.Context,
		id domaintypes.SessionID,
		account domaintypes.AccountID,
		active bool,
	) (terminated bool, err error)
	Get(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
}

// MessageQueue stores ordinary envelopes per receiver.
type MessageQueue interface {
	Enqueue(ctx context.Context, env domaintypes.EncryptedEnvelope) error
	Fetch(
		ctx context.Context,
		account domaintypes.AccountID,
		limit int,
	) ([]domaintypes.EncryptedEnvelope, error)
	Ack(ctx context.Context, account domaintypes.AccountID, count int) error
}

// NotificationChannel is an advisory push with no delivery guarantee.
type NotificationChannel interface {
	Notify(ctx context.Context, account domaintypes.AccountID, n domaintypes.Notification) error
}
