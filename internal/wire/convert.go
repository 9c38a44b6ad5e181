package wire

import (
	"encoding/base64"

	"parley/internal/crypto"
	"parley/internal/domain"
)

func decodeFixed(field, s string, dst []byte) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return domain.Invalid(field, "not base64")
	}
	if len(b) != len(dst) {
		return domain.Invalid(field, "wrong length")
	}
	copy(dst, b)
	return nil
}

func decodeKey(field, s string) (domain.X25519Public, error) {
	var k domain.X25519Public
	if err := decodeFixed(field, s, k[:]); err != nil {
		return k, err
	}
	if k.IsZero() {
		return k, domain.Invalid(field, "zero-length key material")
	}
	return k, nil
}

// FromBundle encodes a public bundle.
func FromBundle(b domain.PublicBundle) Bundle {
	out := Bundle{
		Account:               b.Account.String(),
		IdentityKey:           crypto.B64(b.IdentityKey.Slice()),
		SigningKey:            crypto.B64(b.SigningKey.Slice()),
		SignedPrekey:          crypto.B64(b.SignedPrekey.Slice()),
		SignedPrekeySignature: crypto.B64(b.SignedPrekeySignature),
	}
	if b.OneTimePrekey != nil {
		otk := FromOneTimePrekey(*b.OneTimePrekey)
		out.OneTimePrekey = &otk
	}
	return out
}

// ToDomain decodes the bundle. Missing or malformed fields give a ValidationError.
func (b Bundle) ToDomain() (domain.PublicBundle, error) {
	if err := Validate(b); err != nil {
		return domain.PublicBundle{}, err
	}
	var (
		out domain.PublicBundle
		err error
	)
	out.Account = domain.AccountID(b.Account)
	if out.IdentityKey, err = decodeKey("identity_key", b.IdentityKey); err != nil {
		return domain.PublicBundle{}, err
	}
	if err = decodeFixed("signing_key", b.SigningKey, out.SigningKey[:]); err != nil {
		return domain.PublicBundle{}, err
	}
	if out.SigningKey.IsZero() {
		return domain.PublicBundle{}, domain.Invalid("signing_key", "zero-length key material")
	}
	if out.SignedPrekey, err = decodeKey("signed_prekey", b.SignedPrekey); err != nil {
		return domain.PublicBundle{}, err
	}
	sig := make([]byte, domain.SignatureSize)
	if err = decodeFixed("signed_prekey_signature", b.SignedPrekeySignature, sig); err != nil {
		return domain.PublicBundle{}, err
	}
	out.SignedPrekeySignature = sig
	if b.OneTimePrekey != nil {
		otk, err := b.OneTimePrekey.ToDomain()
		if err != nil {
			return domain.PublicBundle{}, err
		}
		out.OneTimePrekey = &otk
	}
	return out, nil
}

// FromPeer encodes a registered identity.
func FromPeer(p domain.PeerIdentity) Peer {
	return Peer{
		Account:     p.Account.String(),
		IdentityKey: crypto.B64(p.IdentityKey.Slice()),
		SigningKey:  crypto.B64(p.SigningKey.Slice()),
	}
}

// ToDomain decodes a registered identity.
func (p Peer) ToDomain() (domain.PeerIdentity, error) {
	if err := Validate(p); err != nil {
		return domain.PeerIdentity{}, err
	}
	out := domain.PeerIdentity{Account: domain.AccountID(p.Account)}
	var err error
	if out.IdentityKey, err = decodeKey("identity_key", p.IdentityKey); err != nil {
		return domain.PeerIdentity{}, err
	}
	if err := decodeFixed("signing_key", p.SigningKey, out.SigningKey[:]); err != nil {
		return domain.PeerIdentity{}, err
	}
	return out, nil
}

// FromAccounts encodes a directory listing.
func FromAccounts(ids []domain.AccountID) Accounts {
	out := Accounts{Accounts: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.Accounts = append(out.Accounts, id.String())
	}
	return out
}

// ToDomain decodes a directory listing.
func (a Accounts) ToDomain() []domain.AccountID {
	out := make([]domain.AccountID, 0, len(a.Accounts))
	for _, id := range a.Accounts {
		out = append(out, domain.AccountID(id))
	}
	return out
}

// FromOneTimePrekey encodes a one-time prekey public half.
func FromOneTimePrekey(k domain.OneTimePrekeyPublic) OneTimePrekey {
	return OneTimePrekey{ID: k.ID.String(), Pub: crypto.B64(k.Pub.Slice())}
}

// ToDomain decodes the one-time prekey.
func (k OneTimePrekey) ToDomain() (domain.OneTimePrekeyPublic, error) {
	if k.ID == "" {
		return domain.OneTimePrekeyPublic{}, domain.Invalid("one_time_prekey.id", "empty")
	}
	pub, err := decodeKey("one_time_prekey.pub", k.Pub)
	if err != nil {
		return domain.OneTimePrekeyPublic{}, err
	}
	return domain.OneTimePrekeyPublic{ID: domain.OneTimePrekeyID(k.ID), Pub: pub}, nil
}

// FromOneTimePrekeys encodes a pool.
func FromOneTimePrekeys(keys []domain.OneTimePrekeyPublic) []OneTimePrekey {
	out := make([]OneTimePrekey, 0, len(keys))
	for _, k := range keys {
		out = append(out, FromOneTimePrekey(k))
	}
	return out
}

// ToOneTimePrekeys decodes a pool. Repeated ids are rejected.
func ToOneTimePrekeys(keys []OneTimePrekey) ([]domain.OneTimePrekeyPublic, error) {
	out := make([]domain.OneTimePrekeyPublic, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k.ID]; dup {
			return nil, domain.ErrDuplicateOneTimeKey
		}
		seen[k.ID] = struct{}{}
		d, err := k.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FromSignedPrekey encodes a signed prekey.
func FromSignedPrekey(s domain.SignedPrekeyPublic) SignedPrekey {
	return SignedPrekey{Pub: crypto.B64(s.Pub.Slice()), Signature: crypto.B64(s.Signature)}
}

// ToDomain decodes the signed prekey.
func (s SignedPrekey) ToDomain() (domain.SignedPrekeyPublic, error) {
	if err := Validate(s); err != nil {
		return domain.SignedPrekeyPublic{}, err
	}
	pub, err := decodeKey("pub", s.Pub)
	if err != nil {
		return domain.SignedPrekeyPublic{}, err
	}
	sig := make([]byte, domain.SignatureSize)
	if err := decodeFixed("signature", s.Signature, sig); err != nil {
		return domain.SignedPrekeyPublic{}, err
	}
	return domain.SignedPrekeyPublic{Pub: pub, Signature: sig}, nil
}

// FromEnvelope encodes an envelope.
func FromEnvelope(e domain.EncryptedEnvelope) Envelope {
	out := Envelope{
		SessionID:  e.SessionID.String(),
		Sender:     e.Sender.String(),
		Receiver:   e.Receiver.String(),
		Ciphertext: crypto.B64(e.Ciphertext),
		Nonce:      crypto.B64(e.Nonce[:]),
		IsInitial:  e.IsInitial,
		CreatedAt:  e.CreatedAt,
	}
	if e.Bootstrap != nil {
		out.EphemeralKey = crypto.B64(e.Bootstrap.EphemeralKey.Slice())
		out.IdentityKey = crypto.B64(e.Bootstrap.IdentityKey.Slice())
		out.OneTimePrekeyID = e.Bootstrap.OneTimePrekeyID.String()
	}
	return out
}

// ToDomain decodes the envelope and checks that bootstrap fields appear
// exactly on initial envelopes.
func (e Envelope) ToDomain() (domain.EncryptedEnvelope, error) {
	if err := Validate(e); err != nil {
		return domain.EncryptedEnvelope{}, err
	}
	ct, err := base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return domain.EncryptedEnvelope{}, domain.Invalid("ciphertext", "not base64")
	}
	out := domain.EncryptedEnvelope{
		SessionID:  domain.SessionID(e.SessionID),
		Sender:     domain.AccountID(e.Sender),
		Receiver:   domain.AccountID(e.Receiver),
		Ciphertext: ct,
		IsInitial:  e.IsInitial,
		CreatedAt:  e.CreatedAt,
	}
	if err := decodeFixed("nonce", e.Nonce, out.Nonce[:]); err != nil {
		return domain.EncryptedEnvelope{}, err
	}

	hasBootstrap := e.EphemeralKey != "" || e.IdentityKey != "" || e.OneTimePrekeyID != ""
	switch {
	case e.IsInitial:
		eph, err := decodeKey("ephemeral_key", e.EphemeralKey)
		if err != nil {
			return domain.EncryptedEnvelope{}, err
		}
		ik, err := decodeKey("identity_key", e.IdentityKey)
		if err != nil {
			return domain.EncryptedEnvelope{}, err
		}
		out.Bootstrap = &domain.BootstrapHeader{
			EphemeralKey:    eph,
			IdentityKey:     ik,
			OneTimePrekeyID: domain.OneTimePrekeyID(e.OneTimePrekeyID),
		}
	case hasBootstrap:
		return domain.EncryptedEnvelope{}, domain.Invalid("envelope", "bootstrap fields on a non-initial message")
	}
	return out, nil
}

// FromEnvelopes encodes a batch.
func FromEnvelopes(envs []domain.EncryptedEnvelope) Messages {
	out := Messages{Messages: make([]Envelope, 0, len(envs))}
	for _, e := range envs {
		out.Messages = append(out.Messages, FromEnvelope(e))
	}
	return out
}

// ToDomain decodes a batch.
func (m Messages) ToDomain() ([]domain.EncryptedEnvelope, error) {
	out := make([]domain.EncryptedEnvelope, 0, len(m.Messages))
	for _, e := range m.Messages {
		d, err := e.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FromAdvice encodes a status report.
func FromAdvice(a domain.PrekeyAdvice) Status {
	return Status{
		SignedPrekeyUpdated: a.Status.SignedPrekeyUpdated,
		OneTimePrekeys:      a.Status.OneTimePrekeys,
		Rotate:              a.Rotate,
		Replenish:           a.Replenish,
	}
}

// ToDomain decodes a status report.
func (s Status) ToDomain() domain.PrekeyAdvice {
	return domain.PrekeyAdvice{
		Status: domain.PrekeyStatus{
			SignedPrekeyUpdated: s.SignedPrekeyUpdated,
			OneTimePrekeys:      s.OneTimePrekeys,
		},
		Rotate:    s.Rotate,
		Replenish: s.Replenish,
	}
}

// FromSessionInfo encodes a session view.
func FromSessionInfo(i domain.SessionInfo) SessionInfo {
	return SessionInfo{
		ID:              i.ID.String(),
		Initiator:       i.Initiator.String(),
		Responder:       i.Responder.String(),
		InitiatorActive: i.InitiatorActive,
		ResponderActive: i.ResponderActive,
		State:           i.State.String(),
	}
}

// ToDomain decodes a session view.
func (i SessionInfo) ToDomain() domain.SessionInfo {
	return domain.SessionInfo{
		ID:              domain.SessionID(i.ID),
		Initiator:       domain.AccountID(i.Initiator),
		Responder:       domain.AccountID(i.Responder),
		InitiatorActive: i.InitiatorActive,
		ResponderActive: i.ResponderActive,
		State:           ParseSessionState(i.State),
	}
}

// ParseSessionState is the inverse of SessionState.String.
func ParseSessionState(s string) domain.SessionState {
	for _, st := range []domain.SessionState{domain.PendingEstablishment, domain.Established, domain.Terminated} {
		if st.String() == s {
			return st
		}
	}
	return domain.NoSession
}

// FromNotification encodes a notification.
func FromNotification(n domain.Notification) Notification {
	return Notification{Kind: string(n.Kind), From: n.From.String(), SessionID: n.SessionID.String(), At: n.At}
}

// ToDomain decodes a notification.
func (n Notification) ToDomain() domain.Notification {
	return domain.Notification{
		Kind:      domain.NotificationKind(n.Kind),
		From:      domain.AccountID(n.From),
		SessionID: domain.SessionID(n.SessionID),
		At:        n.At,
	}
}
