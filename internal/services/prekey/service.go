package prekey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"parley/internal/domain"
	"parley/internal/protocol/keybundle"
)

// ErrNoSignedPrekey is returned when prekeys have not been generated yet.
var ErrNoSignedPrekey = errors.New("no signed prekey available; generate prekeys first")

// Service manages prekey pairs and builds the public bundle.
type Service struct {
	ids   domain.IdentityStore
	keys  domain.LocalPrekeyStore
	relay domain.RelayClient
	log   logrus.FieldLogger
	now   func() time.Time
}

// New returns a prekey service.
func New(
	ids domain.IdentityStore,
	keys domain.LocalPrekeyStore,
	relay domain.RelayClient,
	log logrus.FieldLogger,
) *Service {
	return &Service{ids: ids, keys: keys, relay: relay, log: log, now: time.Now}
}

// GenerateAndStorePrekeys creates a fresh signed prekey and count one-time
// prekeys, stores the private halves and returns the public bundle. The
// returned bundle has no account; Register fills it in.
func (s *Service) GenerateAndStorePrekeys(passphrase string, count int) (domain.PublicBundle, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.PublicBundle{}, err
	}

	spk, err := keybundle.RotateSignedPrekey(id.EdPriv, s.now())
	if err != nil {
		return domain.PublicBundle{}, err
	}
	fresh, err := s.freshOneTimeKeys(count)
	if err != nil {
		return domain.PublicBundle{}, err
	}

	if err := s.keys.SaveSignedPrekey(spk); err != nil {
		return domain.PublicBundle{}, fmt.Errorf("save signed prekey: %w", err)
	}
	if err := s.keys.SaveOneTimePrekeys(fresh); err != nil {
		return domain.PublicBundle{}, fmt.Errorf("save one-time prekeys: %w", err)
	}
	s.log.WithField("one_time_prekeys", len(fresh)).Info("prekeys generated")
	return keybundle.PublicBundle("", id, spk), nil
}

// LoadPublicBundle builds the bundle for account from the stored identity and
// current signed prekey.
func (s *Service) LoadPublicBundle(passphrase string, account domain.AccountID) (domain.PublicBundle, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.PublicBundle{}, err
	}
	spk, ok, err := s.keys.LoadSignedPrekey()
	if err != nil {
		return domain.PublicBundle{}, err
	}
	if !ok {
		return domain.PublicBundle{}, ErrNoSignedPrekey
	}
	return keybundle.PublicBundle(account, id, spk), nil
}

// Register publishes the bundle and the whole local one-time pool, replacing
// whatever the relay held for account.
func (s *Service) Register(ctx context.Context, passphrase string, account domain.AccountID) error {
	bundle, err := s.LoadPublicBundle(passphrase, account)
	if err != nil {
		return err
	}
	pairs, err := s.keys.ListOneTimePrekeys()
	if err != nil {
		return err
	}
	pool := make([]domain.OneTimePrekeyPublic, 0, len(pairs))
	for _, p := range pairs {
		pool = append(pool, p.Public())
	}
	if err := s.relay.PublishBundle(ctx, bundle, pool); err != nil {
		return fmt.Errorf("publish bundle: %w", err)
	}
	s.log.WithFields(logrus.Fields{"account": account, "one_time_prekeys": len(pool)}).Info("bundle published")
	return nil
}

// Maintain asks the relay for prekey advice and rotates or replenishes
// accordingly. force does both regardless of the advice.
//
// A rotated signed prekey replaces the old one locally only after the relay
// accepted it. The old private half is discarded, so a bootstrap computed
// against it can no longer be accepted.
func (s *Service) Maintain(ctx context.Context, passphrase string, force bool) (domain.MaintenanceReport, error) {
	var report domain.MaintenanceReport

	advice, err := s.relay.PrekeyStatus(ctx)
	if err != nil {
		return report, fmt.Errorf("prekey status: %w", err)
	}

	if advice.Rotate || force {
		id, err := s.ids.LoadIdentity(passphrase)
		if err != nil {
			return report, err
		}
		spk, err := keybundle.RotateSignedPrekey(id.EdPriv, s.now())
		if err != nil {
			return report, err
		}
		if err := s.relay.UpdateSignedPrekey(ctx, spk.Public()); err != nil {
			return report, fmt.Errorf("update signed prekey: %w", err)
		}
		if err := s.keys.SaveSignedPrekey(spk); err != nil {
			return report, fmt.Errorf("save signed prekey: %w", err)
		}
		report.Rotated = true
		s.log.WithField("age", advice.Status.SignedPrekeyAge(s.now()).Round(time.Second)).Info("signed prekey rotated")
	}

	if advice.Replenish || force {
		fresh, err := s.freshOneTimeKeys(keybundle.DefaultPoolSize)
		if err != nil {
			return report, err
		}
		// Private halves first, so every key the relay hands out can be answered.
		if err := s.keys.SaveOneTimePrekeys(fresh); err != nil {
			return report, fmt.Errorf("save one-time prekeys: %w", err)
		}
		pub := make([]domain.OneTimePrekeyPublic, 0, len(fresh))
		for _, p := range fresh {
			pub = append(pub, p.Public())
		}
		if err := s.relay.AddOneTimeKeys(ctx, pub); err != nil {
			return report, fmt.Errorf("add one-time prekeys: %w", err)
		}
		report.Added = len(fresh)
		s.log.WithFields(logrus.Fields{
			"remaining": advice.Status.OneTimePrekeys,
			"added":     len(fresh),
		}).Info("one-time prekeys replenished")
	}
	return report, nil
}

// freshOneTimeKeys generates count new pairs whose ids do not collide with
// the local pool.
func (s *Service) freshOneTimeKeys(count int) ([]domain.OneTimePrekeyPair, error) {
	existing, err := s.keys.ListOneTimePrekeys()
	if err != nil {
		return nil, err
	}
	pool, err := keybundle.ReplenishOneTimeKeys(existing, count)
	if err != nil {
		return nil, err
	}
	return pool[len(existing):], nil
}

// Compile-time assertion that Service implements domain.PrekeyService.
var _ domain.PrekeyService = (*Service)(nil)
