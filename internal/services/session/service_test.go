package session_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/backend/memory"
	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/protocol/channel"
	"parley/internal/protocol/lifecycle"
	"parley/internal/protocol/x3dh"
	"parley/internal/relay"
	"parley/internal/server"
	"parley/internal/services/identity"
	"parley/internal/services/prekey"
	"parley/internal/services/session"
	"parley/internal/store"
)

const pass = "Correct-Horse-42"

type party struct {
	account  domain.AccountID
	ids      *store.IdentityFileStore
	keys     *store.PrekeyFileStore
	store    *store.SessionFileStore
	history  *store.HistoryFileStore
	relay    *relay.HTTP
	sessions *session.Service
}

// over builds a second service for p that talks to the relay through rc.
func (p *party) over(t *testing.T, rc domain.RelayClient) *session.Service {
	t.Helper()
	log, _ := test.NewNullLogger()
	return session.New(p.account, p.ids, p.keys, p.store, p.history, rc, log)
}

// faultyRelay fails or rewrites selected calls and passes the rest through.
type faultyRelay struct {
	domain.RelayClient
	failConsume int
	rewrite     func(*domain.EncryptedEnvelope)
}

func (r *faultyRelay) ConsumeBootstrap(ctx context.Context, id domain.SessionID) error {
	if r.failConsume > 0 {
		r.failConsume--
		return errors.New("connection reset by peer")
	}
	return r.RelayClient.ConsumeBootstrap(ctx, id)
}

func (r *faultyRelay) FetchBootstrap(ctx context.Context, from domain.AccountID) (*domain.EncryptedEnvelope, error) {
	env, err := r.RelayClient.FetchBootstrap(ctx, from)
	if env != nil && r.rewrite != nil {
		r.rewrite(env)
	}
	return env, err
}

func newRelay(t *testing.T) (*httptest.Server, *server.Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	auth := server.NewAuthenticator([]byte("secret"), "parley-test")
	srv := httptest.NewServer(server.New(memory.New(), server.NewHub(), auth, log, server.Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, auth
}

// newParty creates an identity and signed prekey, stores the given one-time
// ids and registers the bundle.
func newParty(t *testing.T, srv *httptest.Server, auth *server.Authenticator, account domain.AccountID, otks ...domain.OneTimePrekeyID) *party {
	t.Helper()
	log, _ := test.NewNullLogger()
	home := t.TempDir()

	ids := store.NewIdentityFileStore(home)
	keys := store.NewPrekeyFileStore(home)
	sessions := store.NewSessionFileStore(home)
	history := store.NewHistoryFileStore(home)

	tok, err := auth.IssueToken(account, time.Hour)
	require.NoError(t, err)
	rc := relay.NewHTTP(srv.URL, tok, srv.Client())

	_, _, err = identity.New(ids, log).GenerateIdentity(pass)
	require.NoError(t, err)

	pk := prekey.New(ids, keys, rc, log)
	_, err = pk.GenerateAndStorePrekeys(pass, 0)
	require.NoError(t, err)

	pairs := make([]domain.OneTimePrekeyPair, 0, len(otks))
	for _, id := range otks {
		priv, pub, err := crypto.GenerateX25519()
		require.NoError(t, err)
		pairs = append(pairs, domain.OneTimePrekeyPair{ID: id, Priv: priv, Pub: pub})
	}
	require.NoError(t, keys.SaveOneTimePrekeys(pairs))
	require.NoError(t, pk.Register(context.Background(), pass, account))

	return &party{
		account:  account,
		ids:      ids,
		keys:     keys,
		store:    sessions,
		history:  history,
		relay:    rc,
		sessions: session.New(account, ids, keys, sessions, history, rc, log),
	}
}

func TestAliceBob_EndToEnd(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()

	alice := newParty(t, srv, auth, "alice", "k1", "k2")
	bob := newParty(t, srv, auth, "bob", "k7")

	// Alice allocates k7 and hands off the bootstrap.
	started, err := alice.sessions.Select(ctx, pass, "bob")
	require.NoError(t, err)
	assert.Equal(t, "initiated", started.Action)
	assert.Equal(t, domain.PendingEstablishment, started.Session.State)
	assert.Equal(t, domain.OneTimePrekeyID("k7"), started.Session.OneTimePrekeyID)

	// k7 is gone from the relay.
	again, err := alice.relay.FetchBundle(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, again.OneTimePrekey)

	// Sending before Bob accepts is refused locally.
	assert.ErrorIs(t, alice.sessions.Send(ctx, "bob", []byte("too early")), session.ErrNotEstablished)

	// Bob mirrors the handshake and opens the greeting.
	accepted, err := bob.sessions.Select(ctx, pass, "alice")
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Action)
	require.NotNil(t, accepted.Accept)
	require.NoError(t, accepted.Accept.DecryptErr)
	assert.Equal(t, session.Greeting, string(accepted.Accept.Plaintext))
	assert.Equal(t, started.Session.ID, accepted.Session.ID)
	assert.Equal(t, started.Session.Secret, accepted.Session.Secret)
	assert.Equal(t, domain.Established, accepted.Session.State)

	_, ok, err := bob.keys.LoadOneTimePrekey("k7")
	require.NoError(t, err)
	assert.False(t, ok, "k7 must be retired locally")

	bootstrap, err := bob.relay.FetchBootstrap(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, bootstrap, "bootstrap must be consumed")

	// Ordinary messages both ways under the same secret.
	require.NoError(t, alice.sessions.Send(ctx, "bob", []byte("hello")))
	msgs, err := bob.sessions.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, msgs[0].Err)
	assert.Equal(t, "hello", string(msgs[0].Plaintext))
	assert.Equal(t, domain.AccountID("alice"), msgs[0].From)

	require.NoError(t, bob.sessions.Send(ctx, "alice", []byte("hi back")))
	msgs, err = alice.sessions.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi back", string(msgs[0].Plaintext))

	// Both sides keep the plaintext history.
	log, err := alice.sessions.History("bob", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, session.Greeting, string(log[0].Body))
	assert.Equal(t, domain.DirectionOut, log[1].Direction)
	assert.Equal(t, "hi back", string(log[2].Body))
	assert.Equal(t, domain.DirectionIn, log[2].Direction)

	log, err = bob.sessions.History("alice", 1)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "hi back", string(log[0].Body))
	assert.Equal(t, domain.DirectionOut, log[0].Direction)

	// Re-selecting while Established is a no-op.
	reused, err := alice.sessions.Select(ctx, pass, "bob")
	require.NoError(t, err)
	assert.Equal(t, "reused", reused.Action)
	assert.Equal(t, started.Session.ID, reused.Session.ID)

	// Alice ends; Bob stays Established and can still send.
	require.NoError(t, alice.sessions.End(ctx, "bob"))
	info, err := bob.relay.SessionInfo(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.False(t, info.InitiatorActive)
	assert.True(t, info.ResponderActive)

	require.NoError(t, bob.sessions.Send(ctx, "alice", []byte("still here")))
	msgs, err = alice.sessions.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.ErrorIs(t, msgs[0].Err, domain.ErrStaleSession)

	// Bob ends too; the relay purges the session.
	require.NoError(t, bob.sessions.End(ctx, "alice"))
	_, err = bob.relay.SessionInfo(ctx, started.Session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, bob.sessions.Send(ctx, "alice", []byte("gone")), session.ErrNoSession)

	// Re-selecting after termination restarts from NoSession.
	fresh, err := alice.sessions.Select(ctx, pass, "bob")
	require.NoError(t, err)
	assert.Equal(t, "initiated", fresh.Action)
	assert.NotEqual(t, started.Session.ID, fresh.Session.ID)
	assert.Empty(t, fresh.Session.OneTimePrekeyID)
}

func TestInitiate_ExhaustedPoolUsesThreeDH(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()

	alice := newParty(t, srv, auth, "alice")
	bob := newParty(t, srv, auth, "bob")

	sess, err := alice.sessions.Initiate(ctx, pass, "bob")
	require.NoError(t, err)
	assert.Empty(t, sess.OneTimePrekeyID)

	res, err := bob.sessions.Accept(ctx, pass, "alice")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NoError(t, res.DecryptErr)
	assert.Equal(t, sess.Secret, res.Session.Secret)
}

func TestAccept_NothingWaiting(t *testing.T) {
	srv, auth := newRelay(t)
	bob := newParty(t, srv, auth, "bob")

	res, err := bob.sessions.Accept(context.Background(), pass, "alice")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSelfAndMissingPeer(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	alice := newParty(t, srv, auth, "alice")

	_, err := alice.sessions.Initiate(ctx, pass, "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = alice.sessions.Initiate(ctx, pass, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = alice.sessions.End(ctx, "nobody")
	assert.True(t, errors.Is(err, session.ErrNoSession))
}

func TestBootstrap_IdentityBoundToRegisteredKey(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	mallory := newParty(t, srv, auth, "mallory")
	bob := newParty(t, srv, auth, "bob", "k1")

	// The relay refuses a header naming a key mallory never registered.
	forged, err := crypto.NewIdentity()
	require.NoError(t, err)
	bundle, err := mallory.relay.FetchBundle(ctx, "bob")
	require.NoError(t, err)
	res, err := x3dh.Initiate(forged, bundle)
	require.NoError(t, err)
	ct, nonce, err := channel.Seal(res.Secret, []byte("hi"))
	require.NoError(t, err)
	header := res.Header(forged.XPub)
	err = mallory.relay.StoreBootstrap(ctx, domain.EncryptedEnvelope{
		SessionID:  lifecycle.NewSessionID("mallory", "bob", time.Now()),
		Sender:     "mallory",
		Receiver:   "bob",
		Ciphertext: ct,
		Nonce:      nonce,
		IsInitial:  true,
		Bootstrap:  &header,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Bob checks the header himself as well.
	_, err = mallory.sessions.Initiate(ctx, pass, "bob")
	require.NoError(t, err)
	tampered := bob.over(t, &faultyRelay{
		RelayClient: bob.relay,
		rewrite:     func(env *domain.EncryptedEnvelope) { env.Bootstrap.IdentityKey = forged.XPub },
	})
	_, err = tampered.Accept(ctx, pass, "mallory")
	assert.ErrorIs(t, err, session.ErrIdentityMismatch)
	sessions, err := bob.sessions.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions, "nothing is established on a mismatched identity")

	accepted, err := bob.sessions.Accept(ctx, pass, "mallory")
	require.NoError(t, err)
	require.NotNil(t, accepted)
	assert.Equal(t, domain.Established, accepted.Session.State)
}

func TestSelect_BothSidesInitiate(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	alice := newParty(t, srv, auth, "alice", "a1")
	bob := newParty(t, srv, auth, "bob", "b1")

	a, err := alice.sessions.Initiate(ctx, pass, "bob")
	require.NoError(t, err)
	b, err := bob.sessions.Initiate(ctx, pass, "alice")
	require.NoError(t, err)
	winner := a.ID
	if b.ID < winner {
		winner = b.ID
	}

	var fromAlice, fromBob domain.SelectResult
	for round := 0; round < 2; round++ {
		fromAlice, err = alice.sessions.Select(ctx, pass, "bob")
		require.NoError(t, err)
		fromBob, err = bob.sessions.Select(ctx, pass, "alice")
		require.NoError(t, err)
	}

	assert.Equal(t, winner, fromAlice.Session.ID)
	assert.Equal(t, winner, fromBob.Session.ID)
	assert.Equal(t, domain.Established, fromAlice.Session.State)
	assert.Equal(t, domain.Established, fromBob.Session.State)
	assert.Equal(t, fromAlice.Session.Secret, fromBob.Session.Secret)

	require.NoError(t, alice.sessions.Send(ctx, "bob", []byte("ping")))
	require.NoError(t, bob.sessions.Send(ctx, "alice", []byte("pong")))

	msgs, err := bob.sessions.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, msgs[0].Err)
	assert.Equal(t, "ping", string(msgs[0].Plaintext))

	msgs, err = alice.sessions.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, msgs[0].Err)
	assert.Equal(t, "pong", string(msgs[0].Plaintext))
}

func TestAccept_EndedBeforeConsumeStartsOver(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	alice := newParty(t, srv, auth, "alice")
	bob := newParty(t, srv, auth, "bob", "k1")

	first, err := alice.sessions.Initiate(ctx, pass, "bob")
	require.NoError(t, err)

	// Bob derives the secret but the consume call never reaches the relay.
	flaky := bob.over(t, &faultyRelay{RelayClient: bob.relay, failConsume: 1})
	_, err = flaky.Accept(ctx, pass, "alice")
	require.Error(t, err)
	stored, ok, err := bob.store.LoadSession(first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Established, stored.State)

	// He ends it before retrying; the wiped secret must not be reused.
	require.NoError(t, bob.sessions.End(ctx, "alice"))

	res, err := bob.sessions.Select(ctx, pass, "alice")
	require.NoError(t, err)
	assert.Equal(t, "initiated", res.Action)
	assert.NotEqual(t, first.ID, res.Session.ID)
	assert.False(t, res.Session.Secret.IsZero())

	// Alice sees her first attempt declined and takes Bob's.
	got, err := alice.sessions.Select(ctx, pass, "bob")
	require.NoError(t, err)
	assert.Equal(t, "accepted", got.Action)
	assert.Equal(t, res.Session.ID, got.Session.ID)
	require.NoError(t, got.Accept.DecryptErr)

	_, err = alice.relay.SessionInfo(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "declined session is purged once both have ended it")
}

func TestPeers_DirectoryAndFingerprint(t *testing.T) {
	srv, auth := newRelay(t)
	ctx := context.Background()
	alice := newParty(t, srv, auth, "alice")
	newParty(t, srv, auth, "bob")
	newParty(t, srv, auth, "carol")

	peers, err := alice.sessions.Peers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"bob", "carol"}, peers)

	fp, err := alice.sessions.PeerFingerprint(ctx, "alice")
	require.NoError(t, err)
	own, err := identity.New(alice.ids, logrus.New()).FingerprintIdentity(pass)
	require.NoError(t, err)
	assert.Equal(t, own, fp)

	_, err = alice.sessions.PeerFingerprint(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
