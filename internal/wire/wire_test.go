package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/wire"
)

func makeKey(t *testing.T) domain.X25519Public {
	t.Helper()
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return pub
}

func TestBundle_MissingFieldIsValidationError(t *testing.T) {
	b := wire.FromBundle(domain.PublicBundle{
		IdentityKey:           makeKey(t),
		SigningKey:            domain.Ed25519Public(makeKey(t)),
		SignedPrekey:          makeKey(t),
		SignedPrekeySignature: make([]byte, domain.SignatureSize),
	})
	_, err := b.ToDomain()
	require.NoError(t, err)

	b.SignedPrekey = ""
	_, err = b.ToDomain()
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "SignedPrekey", verr.Field)
}

func TestBundle_WrongWidth(t *testing.T) {
	b := wire.FromBundle(domain.PublicBundle{
		IdentityKey:           makeKey(t),
		SigningKey:            domain.Ed25519Public(makeKey(t)),
		SignedPrekey:          makeKey(t),
		SignedPrekeySignature: make([]byte, 10),
	})
	_, err := b.ToDomain()
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestEnvelope_BootstrapFieldsOnlyWhenInitial(t *testing.T) {
	env := domain.EncryptedEnvelope{
		SessionID:  "s1",
		Sender:     "alice",
		Receiver:   "bob",
		Ciphertext: []byte("0123456789abcdef0"),
		IsInitial:  true,
		Bootstrap: &domain.BootstrapHeader{
			EphemeralKey:    makeKey(t),
			IdentityKey:     makeKey(t),
			OneTimePrekeyID: "k7",
		},
	}
	w := wire.FromEnvelope(env)
	got, err := w.ToDomain()
	require.NoError(t, err)
	require.NotNil(t, got.Bootstrap)
	assert.Equal(t, env.Bootstrap.OneTimePrekeyID, got.Bootstrap.OneTimePrekeyID)

	w.IsInitial = false
	_, err = w.ToDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)

	w.IsInitial = true
	w.EphemeralKey = ""
	_, err = w.ToDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestToOneTimePrekeys_RejectsDuplicates(t *testing.T) {
	k := wire.FromOneTimePrekey(domain.OneTimePrekeyPublic{ID: "k1", Pub: makeKey(t)})
	_, err := wire.ToOneTimePrekeys([]wire.OneTimePrekey{k, k})
	assert.ErrorIs(t, err, domain.ErrDuplicateOneTimeKey)
}

func TestParseSessionState(t *testing.T) {
	for _, s := range []domain.SessionState{domain.PendingEstablishment, domain.Established, domain.Terminated} {
		assert.Equal(t, s, wire.ParseSessionState(s.String()))
	}
	assert.Equal(t, domain.NoSession, wire.ParseSessionState("bogus"))
}

func TestValidAccount(t *testing.T) {
	assert.True(t, wire.ValidAccount("alice_01"))
	assert.False(t, wire.ValidAccount(""))
	assert.False(t, wire.ValidAccount("a.b"))
	assert.False(t, wire.ValidAccount("a b"))
}

func TestPeer_RoundTrip(t *testing.T) {
	p := domain.PeerIdentity{Account: "bob", IdentityKey: makeKey(t), SigningKey: domain.Ed25519Public(makeKey(t))}
	got, err := wire.FromPeer(p).ToDomain()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	bad := wire.FromPeer(p)
	bad.Account = "no such/account"
	_, err = bad.ToDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)
}
