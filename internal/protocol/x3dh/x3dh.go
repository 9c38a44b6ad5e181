package x3dh

import (
	"crypto/sha256"
	"fmt"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/util/memzero"
)

// Result is what the initiator keeps and sends after a handshake.
type Result struct {
	Secret          domain.SharedSecret
	EphemeralKey    domain.X25519Public
	OneTimePrekeyID domain.OneTimePrekeyID
}

// Header returns the bootstrap header the responder needs to mirror the handshake.
func (r Result) Header(identity domain.X25519Public) domain.BootstrapHeader {
	return domain.BootstrapHeader{
		EphemeralKey:    r.EphemeralKey,
		IdentityKey:     identity,
		OneTimePrekeyID: r.OneTimePrekeyID,
	}
}

// InitiatorSecret derives the shared secret for the initiator.
//
//	DH1 = DH(IKa, SPKb)
//	DH2 = DH(EKa, IKb)
//	DH3 = DH(EKa, SPKb)
//	DH4 = DH(EKa, OPKb)   only when peerOPK != nil
//	SK  = SHA-256(DH1 || DH2 || DH3 [|| DH4])
func InitiatorSecret(
	ourIDPriv domain.X25519Private,
	ourEphPriv domain.X25519Private,
	peerIDPub domain.X25519Public,
	peerSPK domain.X25519Public,
	peerOPK *domain.X25519Public,
) (domain.SharedSecret, error) {
	if err := requirePrivate("identity key", ourIDPriv); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePrivate("ephemeral key", ourEphPriv); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePublic("peer identity key", peerIDPub); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePublic("peer signed prekey", peerSPK); err != nil {
		return domain.SharedSecret{}, err
	}

	terms := []dhTerm{
		{"DH1", ourIDPriv, peerSPK},
		{"DH2", ourEphPriv, peerIDPub},
		{"DH3", ourEphPriv, peerSPK},
	}
	if peerOPK != nil {
		if err := requirePublic("peer one-time prekey", *peerOPK); err != nil {
			return domain.SharedSecret{}, err
		}
		terms = append(terms, dhTerm{"DH4", ourEphPriv, *peerOPK})
	}
	return combine(terms)
}

// ResponderSecret derives the same secret on the responder side. The terms
// are listed in the initiator's order so that both transcripts match.
func ResponderSecret(
	ourIDPriv domain.X25519Private,
	ourSPKPriv domain.X25519Private,
	ourOPKPriv *domain.X25519Private,
	peerIDPub domain.X25519Public,
	peerEphPub domain.X25519Public,
) (domain.SharedSecret, error) {
	if err := requirePrivate("identity key", ourIDPriv); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePrivate("signed prekey", ourSPKPriv); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePublic("peer identity key", peerIDPub); err != nil {
		return domain.SharedSecret{}, err
	}
	if err := requirePublic("peer ephemeral key", peerEphPub); err != nil {
		return domain.SharedSecret{}, err
	}

	terms := []dhTerm{
		{"DH1", ourSPKPriv, peerIDPub},
		{"DH2", ourIDPriv, peerEphPub},
		{"DH3", ourSPKPriv, peerEphPub},
	}
	if ourOPKPriv != nil {
		if err := requirePrivate("one-time prekey", *ourOPKPriv); err != nil {
			return domain.SharedSecret{}, err
		}
		terms = append(terms, dhTerm{"DH4", *ourOPKPriv, peerEphPub})
	}
	return combine(terms)
}

// VerifySignedPrekey checks the bundle's signed prekey signature. Any failure,
// including malformed signing material, is reported as ErrSignature.
func VerifySignedPrekey(bundle domain.PublicBundle) error {
	if bundle.SigningKey.IsZero() || len(bundle.SignedPrekeySignature) != domain.SignatureSize {
		return domain.ErrSignature
	}
	if !crypto.VerifyEd25519(bundle.SigningKey, bundle.SignedPrekey.Slice(), bundle.SignedPrekeySignature) {
		return domain.ErrSignature
	}
	return nil
}

// Initiate verifies the peer's bundle, generates an ephemeral key and derives
// the initiator's secret. The ephemeral private key never leaves this call.
func Initiate(id domain.IdentityKeyPair, bundle domain.PublicBundle) (Result, error) {
	if err := VerifySignedPrekey(bundle); err != nil {
		return Result{}, err
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return Result{}, fmt.Errorf("generate ephemeral key: %w", err)
	}
	defer memzero.Zero(ephPriv[:])

	var (
		opk   *domain.X25519Public
		opkID domain.OneTimePrekeyID
	)
	if bundle.OneTimePrekey != nil {
		if bundle.OneTimePrekey.ID == "" {
			return Result{}, domain.Invalid("one-time prekey id", "empty")
		}
		pub := bundle.OneTimePrekey.Pub
		opk = &pub
		opkID = bundle.OneTimePrekey.ID
	}

	secret, err := InitiatorSecret(id.XPriv, ephPriv, bundle.IdentityKey, bundle.SignedPrekey, opk)
	if err != nil {
		return Result{}, err
	}
	return Result{Secret: secret, EphemeralKey: ephPub, OneTimePrekeyID: opkID}, nil
}

// Respond mirrors Initiate from the bootstrap header. opkPriv must be the
// private half of header.OneTimePrekeyID, or nil when the header names none.
func Respond(
	id domain.IdentityKeyPair,
	spkPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	header domain.BootstrapHeader,
) (domain.SharedSecret, error) {
	if (header.OneTimePrekeyID == "") != (opkPriv == nil) {
		return domain.SharedSecret{}, domain.Invalid("one-time prekey", "does not match bootstrap header")
	}
	return ResponderSecret(id.XPriv, spkPriv, opkPriv, header.IdentityKey, header.EphemeralKey)
}

type dhTerm struct {
	name string
	priv domain.X25519Private
	pub  domain.X25519Public
}

func combine(terms []dhTerm) (domain.SharedSecret, error) {
	transcript := make([]byte, 0, domain.KeySize*len(terms))
	defer func() { memzero.Zero(transcript) }()

	for _, t := range terms {
		out, err := crypto.DH(t.priv, t.pub)
		if err != nil {
			return domain.SharedSecret{}, domain.Invalid(t.name, err.Error())
		}
		transcript = append(transcript, out[:]...)
		memzero.Zero(out[:])
	}
	return domain.SharedSecret(sha256.Sum256(transcript)), nil
}

func requirePrivate(field string, k domain.X25519Private) error {
	if k.IsZero() {
		return domain.Invalid(field, "zero-length key material")
	}
	return nil
}

func requirePublic(field string, k domain.X25519Public) error {
	if k.IsZero() {
		return domain.Invalid(field, "zero-length key material")
	}
	return nil
}
