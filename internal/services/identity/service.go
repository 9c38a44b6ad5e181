package identity

import (
	"fmt"
	"unicode"

	"github.com/sirupsen/logrus"

	"parley/internal/crypto"
	"parley/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages identity key creation and access using a backing store.
//
// The identity contains an Ed25519 key pair for signing the signed prekey and
// the X25519 key pair derived from the same seed for the handshake.
type Service struct {
	store domain.IdentityStore
	log   logrus.FieldLogger
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore, log logrus.FieldLogger) *Service {
	return &Service{store: s, log: log}
}

// GenerateIdentity creates a new identity, saves it encrypted with the passphrase,
// and returns the identity plus a short fingerprint of the X25519 public key.
func (s *Service) GenerateIdentity(
	passphrase string,
) (domain.IdentityKeyPair, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.IdentityKeyPair{}, "", ErrWeakPassphrase
	}

	id, err := crypto.NewIdentity()
	if err != nil {
		return domain.IdentityKeyPair{}, "", err
	}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.IdentityKeyPair{}, "", fmt.Errorf("save identity: %w", err)
	}

	fp := crypto.Fingerprint(id.XPub.Slice())
	s.log.WithField("fingerprint", fp).Info("identity generated")
	return id, fp, nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.IdentityKeyPair, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns a short fingerprint of the local X25519 public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(id.XPub.Slice()), nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
