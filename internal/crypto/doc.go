// Package crypto exposes the minimal primitives used by parley.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Identity creation, where the X25519 pair is derived from the Ed25519
//     seed (NewIdentity, X25519FromEd25519)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Standard base64 for wire fields (B64)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with memzero.Zero when practical.
package crypto
