// Package channel seals and opens session messages under the handshake secret.
//
// Messages use XSalsa20-Poly1305 (NaCl secretbox) with a fresh random 24-byte
// nonce per message. The nonce travels next to the ciphertext; tampering with
// either, or opening under a different secret, fails authentication.
package channel

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"parley/internal/domain"
)

// Overhead is the number of bytes Seal adds to a plaintext.
const Overhead = secretbox.Overhead

// Seal encrypts plaintext under secret. Empty plaintexts are allowed.
func Seal(secret domain.SharedSecret, plaintext []byte) ([]byte, domain.Nonce, error) {
	var nonce domain.Nonce
	if secret.IsZero() {
		return nil, nonce, domain.Invalid("shared secret", "zero-length key material")
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nonce, fmt.Errorf("read nonce: %w", err)
	}
	key := [domain.KeySize]byte(secret)
	nb := [domain.NonceSize]byte(nonce)
	return secretbox.Seal(nil, plaintext, &nb, &key), nonce, nil
}

// Open authenticates and decrypts ciphertext. Any failure is ErrAuthentication.
func Open(secret domain.SharedSecret, ciphertext []byte, nonce domain.Nonce) ([]byte, error) {
	if secret.IsZero() {
		return nil, domain.Invalid("shared secret", "zero-length key material")
	}
	if len(ciphertext) < Overhead {
		return nil, domain.ErrAuthentication
	}
	key := [domain.KeySize]byte(secret)
	nb := [domain.NonceSize]byte(nonce)
	out, ok := secretbox.Open(nil, ciphertext, &nb, &key)
	if !ok {
		return nil, domain.ErrAuthentication
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
