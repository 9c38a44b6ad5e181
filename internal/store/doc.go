// Package store provides file-based persistence for a parley client.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk with atomic temp-file-then-rename writes.
// All methods are concurrency-safe via internal locking. Stored files live
// under the user's configured home directory.
//
// The package includes stores for:
//   - Identity keys, sealed under a passphrase (IdentityFileStore)
//   - Signed and one-time prekey private halves (PrekeyFileStore)
//   - Session records and their shared secrets (SessionFileStore)
package store
