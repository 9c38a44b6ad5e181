package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"parley/internal/backend/memory"
	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/protocol/keybundle"
	"parley/internal/server"
	"parley/internal/wire"
)

type harness struct {
	t    *testing.T
	srv  *httptest.Server
	auth *server.Authenticator
	hub  *server.Hub
}

func newHarness(t *testing.T, opts server.Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	auth := server.NewAuthenticator([]byte("test-secret"), "parley-test")
	hub := server.NewHub()
	s := server.New(memory.New(), hub, auth, log, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, auth: auth, hub: hub}
}

func (h *harness) do(account domain.AccountID, method, path string, body any) (int, []byte) {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	if account != "" {
		tok, err := h.auth.IssueToken(account, time.Minute)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, out
}

func (h *harness) publish(account domain.AccountID, pool int) domain.PrivateBundle {
	h.t.Helper()
	b, err := keybundle.Generate(pool, time.Now())
	require.NoError(h.t, err)
	pub := keybundle.PublicBundle(account, b.Identity, b.SignedPrekey)
	status, body := h.do(account, http.MethodPost, "/v1/keys", wire.PublishRequest{
		Bundle:         wire.FromBundle(pub),
		OneTimePrekeys: wire.FromOneTimePrekeys(b.OneTimePublics()),
	})
	require.Equal(h.t, http.StatusNoContent, status, string(body))
	return b
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	h := newHarness(t, server.Options{})
	status, _ := h.do("", http.MethodGet, "/v1/keys/status", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	other := server.NewAuthenticator([]byte("other"), "parley-test")
	tok, err := other.IssueToken("alice", time.Minute)
	require.NoError(t, err)
	_, err = h.auth.Parse(tok)
	assert.Error(t, err)
}

func TestPublish_RejectsBadSignature(t *testing.T) {
	h := newHarness(t, server.Options{})
	b, err := keybundle.Generate(0, time.Now())
	require.NoError(t, err)
	pub := keybundle.PublicBundle("bob", b.Identity, b.SignedPrekey)
	pub.SignedPrekeySignature[0] ^= 0xff

	status, body := h.do("bob", http.MethodPost, "/v1/keys", wire.PublishRequest{Bundle: wire.FromBundle(pub)})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), domain.ErrSignature.Error())
}

func TestPublish_ForeignAccountForbidden(t *testing.T) {
	h := newHarness(t, server.Options{})
	b, err := keybundle.Generate(0, time.Now())
	require.NoError(t, err)
	pub := keybundle.PublicBundle("bob", b.Identity, b.SignedPrekey)

	status, _ := h.do("mallory", http.MethodPost, "/v1/keys", wire.PublishRequest{Bundle: wire.FromBundle(pub)})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestFetchBundle_AllocatesEachKeyOnce(t *testing.T) {
	h := newHarness(t, server.Options{})
	h.publish("bob", 2)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		status, body := h.do("alice", http.MethodGet, "/v1/keys/bob", nil)
		require.Equal(t, http.StatusOK, status)
		var b wire.Bundle
		require.NoError(t, json.Unmarshal(body, &b))
		require.NotNil(t, b.OneTimePrekey)
		assert.False(t, seen[b.OneTimePrekey.ID])
		seen[b.OneTimePrekey.ID] = true
	}

	status, body := h.do("alice", http.MethodGet, "/v1/keys/bob", nil)
	require.Equal(t, http.StatusOK, status)
	var b wire.Bundle
	require.NoError(t, json.Unmarshal(body, &b))
	assert.Nil(t, b.OneTimePrekey, "exhausted pool must still serve the bundle")

	status, _ = h.do("alice", http.MethodGet, "/v1/keys/nobody", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFetchBundle_RateLimited(t *testing.T) {
	h := newHarness(t, server.Options{FetchRate: rate.Every(time.Hour), FetchBurst: 1})
	h.publish("bob", 5)

	status, _ := h.do("alice", http.MethodGet, "/v1/keys/bob", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do("alice", http.MethodGet, "/v1/keys/bob", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	status, _ = h.do("carol", http.MethodGet, "/v1/keys/bob", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestStatus_AdvisesMaintenance(t *testing.T) {
	now := time.Now()
	h := newHarness(t, server.Options{Now: func() time.Time { return now.Add(4 * 24 * time.Hour) }})
	h.publish("bob", 3)

	status, body := h.do("bob", http.MethodGet, "/v1/keys/status", nil)
	require.Equal(t, http.StatusOK, status)
	var st wire.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 3, st.OneTimePrekeys)
	assert.True(t, st.Replenish)
	assert.True(t, st.Rotate)
}

func TestRotateAndReplenish(t *testing.T) {
	h := newHarness(t, server.Options{})
	b := h.publish("bob", 0)

	next, err := keybundle.RotateSignedPrekey(b.Identity.EdPriv, time.Now())
	require.NoError(t, err)
	status, _ := h.do("bob", http.MethodPut, "/v1/keys/signed", wire.FromSignedPrekey(next.Public()))
	assert.Equal(t, http.StatusNoContent, status)

	other, err := keybundle.Generate(0, time.Now())
	require.NoError(t, err)
	status, _ = h.do("bob", http.MethodPut, "/v1/keys/signed", wire.FromSignedPrekey(other.SignedPrekey.Public()))
	assert.Equal(t, http.StatusBadRequest, status, "prekey signed by another identity")

	pool, err := keybundle.ReplenishOneTimeKeys(nil, 2)
	require.NoError(t, err)
	pubs := domain.PrivateBundle{OneTimePrekeys: pool}.OneTimePublics()
	status, _ = h.do("bob", http.MethodPost, "/v1/keys/otk", wire.OneTimePrekeys{Keys: wire.FromOneTimePrekeys(pubs)})
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do("bob", http.MethodPost, "/v1/keys/otk", wire.OneTimePrekeys{Keys: wire.FromOneTimePrekeys(pubs)})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = h.do("bob", http.MethodDelete, "/v1/keys/otk/"+pool[0].ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do("bob", http.MethodDelete, "/v1/keys/otk/"+pool[0].ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func envelope(id, from, to string, initial bool) wire.Envelope {
	e := domain.EncryptedEnvelope{
		SessionID:  domain.SessionID(id),
		Sender:     domain.AccountID(from),
		Receiver:   domain.AccountID(to),
		Ciphertext: bytes.Repeat([]byte{1}, 32),
		IsInitial:  initial,
	}
	if initial {
		e.Bootstrap = &domain.BootstrapHeader{
			EphemeralKey: domain.X25519Public{1},
			IdentityKey:  domain.X25519Public{2},
		}
	}
	return wire.FromEnvelope(e)
}

// bootstrap is an initial envelope whose header carries identity.
func bootstrap(id, from, to string, identity domain.X25519Public) wire.Envelope {
	e := envelope(id, from, to, true)
	e.IdentityKey = crypto.B64(identity.Slice())
	return e
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t, server.Options{})
	alice := h.publish("alice", 1)
	h.publish("bob", 1)

	events, cancel := h.hub.Subscribe("bob")
	defer cancel()

	status, body := h.do("alice", http.MethodPost, "/v1/sessions", bootstrap("s1", "alice", "bob", alice.Identity.XPub))
	require.Equal(t, http.StatusCreated, status, string(body))

	select {
	case n := <-events:
		assert.Equal(t, domain.NotifySessionStarted, n.Kind)
		assert.Equal(t, domain.SessionID("s1"), n.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no sessionStarted notification")
	}

	status, _ = h.do("carol", http.MethodGet, "/v1/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.do("bob", http.MethodGet, "/v1/sessions/bootstrap?from=alice", nil)
	require.Equal(t, http.StatusOK, status)
	var boot wire.Envelope
	require.NoError(t, json.Unmarshal(body, &boot))
	assert.Equal(t, "s1", boot.SessionID)
	assert.True(t, boot.IsInitial)

	status, _ = h.do("alice", http.MethodDelete, "/v1/sessions/s1/bootstrap", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do("bob", http.MethodDelete, "/v1/sessions/s1/bootstrap", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = h.do("alice", http.MethodGet, "/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, status)
	var info wire.SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "established", info.State)

	status, _ = h.do("alice", http.MethodPost, "/v1/messages", envelope("s1", "alice", "carol", false))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do("alice", http.MethodPost, "/v1/messages", envelope("s1", "alice", "bob", false))
	assert.Equal(t, http.StatusAccepted, status)

	status, body = h.do("bob", http.MethodGet, "/v1/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var msgs wire.Messages
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs.Messages, 1)
	status, _ = h.do("bob", http.MethodPost, "/v1/messages/ack", wire.Count{Count: 1})
	assert.Equal(t, http.StatusNoContent, status)

	// Alice ends; Bob may keep sending until he ends too.
	status, body = h.do("alice", http.MethodPost, "/v1/sessions/s1/end", nil)
	require.Equal(t, http.StatusOK, status)
	var end wire.EndResult
	require.NoError(t, json.Unmarshal(body, &end))
	assert.False(t, end.Terminated)

	status, _ = h.do("alice", http.MethodPost, "/v1/messages", envelope("s1", "alice", "bob", false))
	assert.Equal(t, http.StatusGone, status)
	status, _ = h.do("bob", http.MethodPost, "/v1/messages", envelope("s1", "bob", "alice", false))
	assert.Equal(t, http.StatusAccepted, status)

	status, body = h.do("bob", http.MethodPost, "/v1/sessions/s1/end", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &end))
	assert.True(t, end.Terminated)

	status, _ = h.do("bob", http.MethodGet, "/v1/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do("bob", http.MethodPost, "/v1/messages", envelope("s1", "bob", "alice", false))
	assert.Equal(t, http.StatusGone, status)
}

func TestStoreBootstrap_Validation(t *testing.T) {
	h := newHarness(t, server.Options{})
	h.publish("bob", 0)

	status, _ := h.do("alice", http.MethodPost, "/v1/sessions", envelope("s1", "mallory", "bob", true))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do("alice", http.MethodPost, "/v1/sessions", envelope("s1", "alice", "bob", false))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do("alice", http.MethodPost, "/v1/sessions", envelope("s1", "alice", "nobody", true))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do("bob", http.MethodGet, "/v1/sessions/bootstrap", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStoreBootstrap_RejectsForeignIdentity(t *testing.T) {
	h := newHarness(t, server.Options{})
	h.publish("bob", 1)
	mallory := h.publish("mallory", 0)
	other := h.publish("carol", 0)

	status, body := h.do("mallory", http.MethodPost, "/v1/sessions", bootstrap("s1", "mallory", "bob", other.Identity.XPub))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "identity_key")

	status, _ = h.do("bob", http.MethodGet, "/v1/sessions/bootstrap?from=mallory", nil)
	assert.Equal(t, http.StatusNotFound, status, "rejected bootstrap must not be stored")

	status, _ = h.do("mallory", http.MethodPost, "/v1/sessions", bootstrap("s2", "mallory", "bob", mallory.Identity.XPub))
	assert.Equal(t, http.StatusCreated, status)
}

func TestAccounts_DirectoryAndIdentity(t *testing.T) {
	h := newHarness(t, server.Options{FetchRate: rate.Limit(1), FetchBurst: 1})
	bob := h.publish("bob", 2)
	h.publish("alice", 0)

	status, body := h.do("alice", http.MethodGet, "/v1/accounts", nil)
	require.Equal(t, http.StatusOK, status)
	var dir wire.Accounts
	require.NoError(t, json.Unmarshal(body, &dir))
	assert.Equal(t, []string{"alice", "bob"}, dir.Accounts)

	for i := 0; i < 3; i++ {
		status, body = h.do("alice", http.MethodGet, "/v1/accounts/bob", nil)
		require.Equal(t, http.StatusOK, status, "identity lookups are not rate limited")
	}
	var peer wire.Peer
	require.NoError(t, json.Unmarshal(body, &peer))
	got, err := peer.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, bob.Identity.XPub, got.IdentityKey)
	assert.Equal(t, bob.Identity.EdPub, got.SigningKey)

	status, body = h.do("bob", http.MethodGet, "/v1/keys/status", nil)
	require.Equal(t, http.StatusOK, status)
	var st wire.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 2, st.OneTimePrekeys, "identity lookups allocate nothing")

	status, _ = h.do("alice", http.MethodGet, "/v1/accounts/nobody", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := server.NewHub()
	ch, cancel := hub.Subscribe("bob")
	for i := 0; i < 100; i++ {
		require.NoError(t, hub.Notify(context.Background(), "bob", domain.Notification{Kind: domain.NotifyNewMessage}))
	}
	assert.Equal(t, 16, len(ch))
	cancel()
	cancel()
	require.NoError(t, hub.Notify(context.Background(), "bob", domain.Notification{}))
}
