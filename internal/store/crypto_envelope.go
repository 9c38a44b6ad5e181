package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// sealedFormatVersion is the current version of the encrypted blob format.
const sealedFormatVersion = 2

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed file has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

// scryptCost holds the key-derivation tunables recorded in every blob.
type scryptCost struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// defaultCost is the interactive-login recommendation for scrypt.
var defaultCost = scryptCost{N: 1 << 15, R: 8, P: 1}

// sealed is the on-disk JSON structure holding the ciphertext and KDF parameters.
type sealed struct {
	V      int        `json:"v"`
	Salt   []byte     `json:"salt"`
	Cost   scryptCost `json:"scrypt"`
	Nonce  []byte     `json:"nonce"`
	Cipher []byte     `json:"cipher"`
}

// seal derives a key from passphrase and encrypts raw with XChaCha20-Poly1305.
// label is bound as associated data so a blob cannot be swapped between files.
func seal(passphrase, label string, raw []byte, cost scryptCost) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, cost.N, cost.R, cost.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(sealed{
		V:      sealedFormatVersion,
		Salt:   salt,
		Cost:   cost,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, []byte(label)),
	})
}

// unseal opens a blob produced by seal.
func unseal(passphrase, label string, b []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.V != sealedFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", s.V)
	}

	key, err := scrypt.Key([]byte(passphrase), s.Salt, s.Cost.N, s.Cost.R, s.Cost.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, s.Nonce, s.Cipher, []byte(label))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
