package keybundle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"parley/internal/crypto"
	"parley/internal/domain"
)

const (
	// DefaultPoolSize is how many one-time prekeys an account keeps published.
	DefaultPoolSize = 100
	// ReplenishThreshold triggers a refill when fewer keys remain on the relay.
	ReplenishThreshold = 10
	// RotationAge is the signed prekey age after which rotation is advised.
	RotationAge = 72 * time.Hour
)

// Generate creates a new identity, a signed prekey certified by it and n
// one-time prekeys. It fails only when the entropy source does.
func Generate(n int, now time.Time) (domain.PrivateBundle, error) {
	id, err := crypto.NewIdentity()
	if err != nil {
		return domain.PrivateBundle{}, fmt.Errorf("generate identity: %w", err)
	}
	spk, err := RotateSignedPrekey(id.EdPriv, now)
	if err != nil {
		return domain.PrivateBundle{}, err
	}
	pool, err := ReplenishOneTimeKeys(nil, n)
	if err != nil {
		return domain.PrivateBundle{}, err
	}
	return domain.PrivateBundle{Identity: id, SignedPrekey: spk, OneTimePrekeys: pool}, nil
}

// SignPrekey certifies a prekey public key with the identity signing key.
// Ed25519 signatures are deterministic, so equal inputs give equal output.
func SignPrekey(signing domain.Ed25519Private, prekey domain.X25519Public) ([]byte, error) {
	if signing == (domain.Ed25519Private{}) {
		return nil, domain.Invalid("identity signing key", "zero-length key material")
	}
	if prekey.IsZero() {
		return nil, domain.Invalid("prekey", "zero-length key material")
	}
	return crypto.SignEd25519(signing, prekey.Slice()), nil
}

// RotateSignedPrekey returns a fresh signed prekey. Persisting it and retiring
// the previous one is up to the caller.
func RotateSignedPrekey(signing domain.Ed25519Private, now time.Time) (domain.SignedPrekeyPair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SignedPrekeyPair{}, fmt.Errorf("generate signed prekey: %w", err)
	}
	sig, err := SignPrekey(signing, pub)
	if err != nil {
		return domain.SignedPrekeyPair{}, err
	}
	return domain.SignedPrekeyPair{Priv: priv, Pub: pub, Signature: sig, CreatedAt: now.UTC()}, nil
}

// ReplenishOneTimeKeys returns existing plus count new one-time prekeys with
// fresh ids. An id collision is a bug and fails with ErrDuplicateOneTimeKey.
func ReplenishOneTimeKeys(existing []domain.OneTimePrekeyPair, count int) ([]domain.OneTimePrekeyPair, error) {
	if count < 0 {
		return nil, domain.Invalid("count", "negative")
	}
	seen := make(map[domain.OneTimePrekeyID]struct{}, len(existing)+count)
	out := make([]domain.OneTimePrekeyPair, 0, len(existing)+count)
	for _, p := range existing {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateOneTimeKey, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, fmt.Errorf("generate one-time prekey: %w", err)
		}
		id := domain.OneTimePrekeyID(uuid.NewString())
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateOneTimeKey, id)
		}
		seen[id] = struct{}{}
		out = append(out, domain.OneTimePrekeyPair{ID: id, Priv: priv, Pub: pub})
	}
	return out, nil
}

// PublicBundle builds the bundle a peer sees, without a one-time key.
func PublicBundle(account domain.AccountID, id domain.IdentityKeyPair, spk domain.SignedPrekeyPair) domain.PublicBundle {
	return domain.PublicBundle{
		Account:               account,
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPrekey:          spk.Pub,
		SignedPrekeySignature: append([]byte(nil), spk.Signature...),
	}
}

// NeedsRotation reports whether the signed prekey is older than maxAge.
func NeedsRotation(status domain.PrekeyStatus, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		maxAge = RotationAge
	}
	return status.SignedPrekeyAge(now) > maxAge
}

// NeedsReplenish reports whether the published pool has dropped below threshold.
func NeedsReplenish(status domain.PrekeyStatus, threshold int) bool {
	if threshold <= 0 {
		threshold = ReplenishThreshold
	}
	return status.OneTimePrekeys < threshold
}
