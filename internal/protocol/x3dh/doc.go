// Package x3dh implements the X3DH-style key agreement that bootstraps a
// session between two parties who have never communicated.
//
// # Overview
//
// The responder publishes a bundle:
//   - Identity key (X25519, derived from the Ed25519 signing seed)
//   - Signing key (Ed25519)
//   - Signed prekey (X25519) and its Ed25519 signature
//   - Optionally one allocated one-time prekey (X25519)
//
// # Flows
//
// Initiator:
//  1. Verify the signed prekey signature (VerifySignedPrekey).
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb].
//  4. SHA-256 over the concatenation gives the 32-byte shared secret.
//
// Responder:
//  1. Receive the bootstrap header (initiator IK, EK and OPK id).
//  2. Compute SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa] in the same order.
//  3. SHA-256 the same transcript to the identical secret.
//
// The DH4 term is omitted entirely, not zero-padded, when no one-time prekey
// was used, so the two variants give different secrets. Order and presence of
// DH4 must match on both sides or the secrets diverge without any error.
//
// # Errors
//
// ErrSignature is returned when the signed prekey does not verify.
// Zero-length or low-order key material yields a ValidationError.
package x3dh
