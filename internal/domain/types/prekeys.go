package types

import "time"

// IdentityKeyPair holds the long-term signing key pair and the X25519 pair
// derived from the same seed.
type IdentityKeyPair struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// SignedPrekeyPair is the medium-term DH key pair and the identity signature
// over its public half.
type SignedPrekeyPair struct {
	Priv      X25519Private `json:"priv"`
	Pub       X25519Public  `json:"pub"`
	Signature []byte        `json:"signature"`
	CreatedAt time.Time     `json:"created_at"`
}

// Public returns the publishable half of the signed prekey.
func (p SignedPrekeyPair) Public() SignedPrekeyPublic {
	return SignedPrekeyPublic{Pub: p.Pub, Signature: append([]byte(nil), p.Signature...)}
}

// SignedPrekeyPublic is what the relay stores for the current signed prekey.
type SignedPrekeyPublic struct {
	Pub       X25519Public `json:"pub"`
	Signature []byte       `json:"signature"`
}

// OneTimePrekeyPair is the full (private+public) one-time prekey kept by the owner.
type OneTimePrekeyPair struct {
	ID   OneTimePrekeyID `json:"id"`
	Priv X25519Private   `json:"priv"`
	Pub  X25519Public    `json:"pub"`
}

// Public returns the publishable half of the pair.
func (p OneTimePrekeyPair) Public() OneTimePrekeyPublic {
	return OneTimePrekeyPublic{ID: p.ID, Pub: p.Pub}
}

// OneTimePrekeyPublic is only the public half (uploaded to the relay).
type OneTimePrekeyPublic struct {
	ID  OneTimePrekeyID `json:"id"`
	Pub X25519Public    `json:"pub"`
}

// PrivateBundle is everything generated for an account at creation time.
type PrivateBundle struct {
	Identity       IdentityKeyPair     `json:"identity"`
	SignedPrekey   SignedPrekeyPair    `json:"signed_prekey"`
	OneTimePrekeys []OneTimePrekeyPair `json:"one_time_prekeys"`
}

// OneTimePublics returns the public halves of the one-time pool.
func (b PrivateBundle) OneTimePublics() []OneTimePrekeyPublic {
	out := make([]OneTimePrekeyPublic, 0, len(b.OneTimePrekeys))
	for _, p := range b.OneTimePrekeys {
		out = append(out, p.Public())
	}
	return out
}

// PublicBundle is an account's key bundle as seen by a peer. OneTimePrekey is
// set only when the relay allocated one for this handshake.
type PublicBundle struct {
	Account               AccountID            `json:"account"`
	IdentityKey           X25519Public         `json:"identity_key"`
	SigningKey            Ed25519Public        `json:"signing_key"`
	SignedPrekey          X25519Public         `json:"signed_prekey"`
	SignedPrekeySignature []byte               `json:"signed_prekey_signature"`
	OneTimePrekey         *OneTimePrekeyPublic `json:"one_time_prekey,omitempty"`
}

// PeerIdentity is the long-term public identity the relay holds for an
// account. It carries no prekeys and fetching it allocates nothing.
type PeerIdentity struct {
	Account     AccountID     `json:"account"`
	IdentityKey X25519Public  `json:"identity_key"`
	SigningKey  Ed25519Public `json:"signing_key"`
}

// Identity returns the identity part of the bundle.
func (b PublicBundle) Identity() PeerIdentity {
	return PeerIdentity{Account: b.Account, IdentityKey: b.IdentityKey, SigningKey: b.SigningKey}
}

// PrekeyStatus is what the relay reports about an account's published keys.
type PrekeyStatus struct {
	SignedPrekeyUpdated time.Time `json:"signed_prekey_updated"`
	OneTimePrekeys      int       `json:"one_time_prekeys"`
}

// SignedPrekeyAge returns how long ago the signed prekey was last replaced.
func (s PrekeyStatus) SignedPrekeyAge(now time.Time) time.Duration {
	return now.Sub(s.SignedPrekeyUpdated)
}
