package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"

	"parley/internal/domain"
	"parley/internal/util/memzero"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// X25519FromEd25519 derives the Diffie–Hellman identity pair from the signing
// seed: the clamped low half of SHA-512(seed) is the X25519 scalar.
func X25519FromEd25519(priv domain.Ed25519Private) (domain.X25519Private, domain.X25519Public, error) {
	h := sha512.Sum512(priv.Seed())
	defer memzero.Zero(h[:])

	var x domain.X25519Private
	copy(x[:], h[:32])
	clamp(&x)
	pub, err := PublicX25519(x)
	if err != nil {
		return domain.X25519Private{}, domain.X25519Public{}, err
	}
	return x, pub, nil
}

// NewIdentity generates a signing key pair and its derived X25519 counterpart.
func NewIdentity() (domain.IdentityKeyPair, error) {
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	xPriv, xPub, err := X25519FromEd25519(edPriv)
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{
		XPub:   xPub,
		XPriv:  xPriv,
		EdPub:  edPub,
		EdPriv: edPriv,
	}, nil
}
