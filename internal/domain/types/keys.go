package types

const (
	// KeySize is the width of X25519 keys, Ed25519 public keys and shared secrets.
	KeySize = 32
	// SignatureSize is the width of an Ed25519 signature.
	SignatureSize = 64
	// NonceSize is the width of a SecureChannel nonce.
	NonceSize = 24
)

// X25519Public is a Curve25519 public key.
type X25519Public [KeySize]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zero bytes.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [KeySize]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// IsZero reports whether the key is all zero bytes.
func (k X25519Private) IsZero() bool { return k == X25519Private{} }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [KeySize]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zero bytes.
func (p Ed25519Public) IsZero() bool { return p == Ed25519Public{} }

// Ed25519Private is an Ed25519 signing private key (seed || public).
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Seed returns the 32-byte seed half of the private key.
func (k Ed25519Private) Seed() []byte { return k[:KeySize] }

// SharedSecret is the 32-byte output of the handshake KDF.
type SharedSecret [KeySize]byte

// IsZero reports whether the secret is all zero bytes.
func (s SharedSecret) IsZero() bool { return s == SharedSecret{} }

// Nonce is the full-width random nonce used by SecureChannel.
type Nonce [NonceSize]byte
