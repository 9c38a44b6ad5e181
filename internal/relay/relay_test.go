package relay_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/backend/memory"
	"parley/internal/domain"
	"parley/internal/protocol/keybundle"
	"parley/internal/relay"
	"parley/internal/server"
)

func newRelay(t *testing.T) (*httptest.Server, *server.Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	auth := server.NewAuthenticator([]byte("secret"), "parley-test")
	srv := httptest.NewServer(server.New(memory.New(), server.NewHub(), auth, log, server.Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, auth
}

func clientFor(t *testing.T, srv *httptest.Server, auth *server.Authenticator, account domain.AccountID) *relay.HTTP {
	t.Helper()
	tok, err := auth.IssueToken(account, time.Hour)
	require.NoError(t, err)
	return relay.NewHTTP(srv.URL, tok, srv.Client())
}

func TestClient_ErrorMapping(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	alice := clientFor(t, srv, auth, "alice")

	_, err := alice.FetchBundle(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := keybundle.Generate(1, time.Now())
	require.NoError(t, err)
	pub := keybundle.PublicBundle("alice", b.Identity, b.SignedPrekey)
	pub.SignedPrekeySignature = append([]byte(nil), pub.SignedPrekeySignature...)
	pub.SignedPrekeySignature[5] ^= 1
	assert.ErrorIs(t, alice.PublishBundle(ctx, pub, nil), domain.ErrSignature)

	pub = keybundle.PublicBundle("alice", b.Identity, b.SignedPrekey)
	require.NoError(t, alice.PublishBundle(ctx, pub, b.OneTimePublics()))
	assert.ErrorIs(t, alice.AddOneTimeKeys(ctx, b.OneTimePublics()), domain.ErrDuplicateOneTimeKey)

	env, err := alice.FetchBootstrap(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, env)

	err = alice.SendMessage(ctx, domain.EncryptedEnvelope{
		SessionID: "gone", Sender: "alice", Receiver: "bob", Ciphertext: make([]byte, 20),
	})
	assert.ErrorIs(t, err, domain.ErrStaleSession)

	forged := relay.NewHTTP(srv.URL, "not-a-token", srv.Client())
	_, err = forged.PrekeyStatus(ctx)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestClient_PrekeyRoundTrip(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	bob := clientFor(t, srv, auth, "bob")
	alice := clientFor(t, srv, auth, "alice")

	b, err := keybundle.Generate(2, time.Now())
	require.NoError(t, err)
	require.NoError(t, bob.PublishBundle(ctx, keybundle.PublicBundle("bob", b.Identity, b.SignedPrekey), b.OneTimePublics()))

	got, err := alice.FetchBundle(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, b.Identity.XPub, got.IdentityKey)
	require.NotNil(t, got.OneTimePrekey)

	adv, err := bob.PrekeyStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, adv.Status.OneTimePrekeys)
	assert.True(t, adv.Replenish)
	assert.False(t, adv.Rotate)

	require.NoError(t, bob.DeleteOneTimeKey(ctx, b.OneTimePrekeys[1].ID))
	assert.ErrorIs(t, bob.DeleteOneTimeKey(ctx, b.OneTimePrekeys[1].ID), domain.ErrNotFound)
}

func TestClient_Directory(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	bob := clientFor(t, srv, auth, "bob")
	alice := clientFor(t, srv, auth, "alice")

	accounts, err := alice.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	b, err := keybundle.Generate(1, time.Now())
	require.NoError(t, err)
	require.NoError(t, bob.PublishBundle(ctx, keybundle.PublicBundle("bob", b.Identity, b.SignedPrekey), b.OneTimePublics()))

	accounts, err = alice.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"bob"}, accounts)

	id, err := alice.PeerIdentity(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountID("bob"), id.Account)
	assert.Equal(t, b.Identity.XPub, id.IdentityKey)

	_, err = alice.PeerIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_Listen(t *testing.T) {
	srv, auth := newRelay(t)
	bob := clientFor(t, srv, auth, "bob")
	alice := clientFor(t, srv, auth, "alice")

	b, err := keybundle.Generate(0, time.Now())
	require.NoError(t, err)
	require.NoError(t, bob.PublishBundle(context.Background(), keybundle.PublicBundle("bob", b.Identity, b.SignedPrekey), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan domain.Notification, 1)
	done := make(chan error, 1)
	go func() {
		done <- bob.Listen(ctx, func(n domain.Notification) {
			select {
			case got <- n:
			default:
			}
		})
	}()

	env := domain.EncryptedEnvelope{
		SessionID:  "session_alice_bob_1_abcdef12",
		Sender:     "alice",
		Receiver:   "bob",
		Ciphertext: make([]byte, 20),
		IsInitial:  true,
		Bootstrap:  &domain.BootstrapHeader{EphemeralKey: domain.X25519Public{1}, IdentityKey: domain.X25519Public{2}},
	}
	// The subscription races the first store; retry with fresh session ids.
	deadline := time.After(3 * time.Second)
	for {
		env.SessionID = domain.SessionID("session_alice_bob_" + time.Now().Format("150405.000000"))
		require.NoError(t, alice.StoreBootstrap(context.Background(), env))
		select {
		case n := <-got:
			assert.Equal(t, domain.NotifySessionStarted, n.Kind)
			assert.Equal(t, domain.AccountID("alice"), n.From)
			cancel()
			<-done
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no notification received")
		}
	}
}
