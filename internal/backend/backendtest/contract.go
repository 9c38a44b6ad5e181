// Package backendtest holds the behaviour every relay backend must share.
// Backend test files call Run with a constructor for a fresh, empty backend.
package backendtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/backend"
	"parley/internal/domain"
)

// Run exercises the full backend contract.
func Run(t *testing.T, newBackend func(t *testing.T) backend.Backend) {
	t.Run("PublishAndGetBundle", func(t *testing.T) { testPublish(t, newBackend(t)) })
	t.Run("AllocateDrainsPool", func(t *testing.T) { testAllocate(t, newBackend(t)) })
	t.Run("ConcurrentAllocateSingleKey", func(t *testing.T) { testConcurrentAllocate(t, newBackend(t)) })
	t.Run("DeleteAndAddOneTimeKeys", func(t *testing.T) { testDeleteAdd(t, newBackend(t)) })
	t.Run("AddRejectsRepeatedIDsInBatch", func(t *testing.T) { testAddBatchDuplicate(t, newBackend(t)) })
	t.Run("ListAccounts", func(t *testing.T) { testListAccounts(t, newBackend(t)) })
	t.Run("UpdateSignedPrekey", func(t *testing.T) { testRotate(t, newBackend(t)) })
	t.Run("BootstrapLatest", func(t *testing.T) { testBootstrap(t, newBackend(t)) })
	t.Run("SessionFlags", func(t *testing.T) { testSessionFlags(t, newBackend(t)) })
	t.Run("MessageQueue", func(t *testing.T) { testQueue(t, newBackend(t)) })
}

func key(t *testing.T) domain.X25519Public {
	t.Helper()
	var k domain.X25519Public
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

// Bundle returns a structurally valid bundle for tests.
func Bundle(t *testing.T) domain.PublicBundle {
	t.Helper()
	return domain.PublicBundle{
		IdentityKey:           key(t),
		SigningKey:            domain.Ed25519Public(key(t)),
		SignedPrekey:          key(t),
		SignedPrekeySignature: make([]byte, domain.SignatureSize),
	}
}

// Pool returns n one-time keys with ids prefix0..prefixN-1.
func Pool(t *testing.T, prefix string, n int) []domain.OneTimePrekeyPublic {
	t.Helper()
	out := make([]domain.OneTimePrekeyPublic, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.OneTimePrekeyPublic{
			ID:  domain.OneTimePrekeyID(fmt.Sprintf("%s%d", prefix, i)),
			Pub: key(t),
		})
	}
	return out
}

func testPublish(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.GetBundle(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrNotFound)

	bundle := Bundle(t)
	require.NoError(t, b.PublishBundle(ctx, "bob", bundle, Pool(t, "k", 3)))

	got, err := b.GetBundle(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountID("bob"), got.Account)
	assert.Equal(t, bundle.IdentityKey, got.IdentityKey)
	assert.Equal(t, bundle.SignedPrekey, got.SignedPrekey)
	assert.Nil(t, got.OneTimePrekey)

	st, err := b.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, st.OneTimePrekeys)
	assert.WithinDuration(t, time.Now(), st.SignedPrekeyUpdated, time.Minute)
}

func testAllocate(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PublishBundle(ctx, "bob", Bundle(t), Pool(t, "k", 2)))

	seen := map[domain.OneTimePrekeyID]bool{}
	for i := 0; i < 2; i++ {
		k, err := b.AllocateOneTimeKey(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, k)
		assert.False(t, seen[k.ID], "id %s served twice", k.ID)
		seen[k.ID] = true
	}

	k, err := b.AllocateOneTimeKey(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, k, "empty pool must allocate nothing")
}

func testConcurrentAllocate(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PublishBundle(ctx, "bob", Bundle(t), Pool(t, "k", 1)))

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  []domain.OneTimePrekeyID
		errs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := b.AllocateOneTimeKey(ctx, "bob")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if k != nil {
				got = append(got, k.ID)
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, domain.OneTimePrekeyID("k0"), got[0])
}

func testDeleteAdd(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PublishBundle(ctx, "bob", Bundle(t), Pool(t, "k", 2)))

	require.NoError(t, b.DeleteOneTimeKey(ctx, "bob", "k1"))
	assert.ErrorIs(t, b.DeleteOneTimeKey(ctx, "bob", "k1"), domain.ErrNotFound)

	require.NoError(t, b.AddOneTimeKeys(ctx, "bob", Pool(t, "n", 3)))
	assert.ErrorIs(t, b.AddOneTimeKeys(ctx, "bob", Pool(t, "n", 1)), domain.ErrDuplicateOneTimeKey)

	st, err := b.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 4, st.OneTimePrekeys)
}

func testAddBatchDuplicate(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PublishBundle(ctx, "bob", Bundle(t), Pool(t, "k", 1)))

	batch := Pool(t, "n", 2)
	batch[1].ID = batch[0].ID
	assert.ErrorIs(t, b.AddOneTimeKeys(ctx, "bob", batch), domain.ErrDuplicateOneTimeKey)

	st, err := b.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, st.OneTimePrekeys, "a rejected batch adds nothing")
}

func testListAccounts(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	got, err := b.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.PublishBundle(ctx, "carol", Bundle(t), nil))
	require.NoError(t, b.PublishBundle(ctx, "alice", Bundle(t), nil))
	require.NoError(t, b.PublishBundle(ctx, "alice", Bundle(t), nil))

	got, err = b.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"alice", "carol"}, got)
}

func testRotate(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PublishBundle(ctx, "bob", Bundle(t), nil))

	spk := domain.SignedPrekeyPublic{Pub: key(t), Signature: make([]byte, domain.SignatureSize)}
	spk.Signature[0] = 7
	at := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, b.UpdateSignedPrekey(ctx, "bob", spk, at))

	got, err := b.GetBundle(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, spk.Pub, got.SignedPrekey)
	assert.Equal(t, spk.Signature, got.SignedPrekeySignature)

	st, err := b.Status(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, at.Equal(st.SignedPrekeyUpdated), "updated %v, want %v", st.SignedPrekeyUpdated, at)

	assert.ErrorIs(t, b.UpdateSignedPrekey(ctx, "nobody", spk, at), domain.ErrNotFound)
}

func envelope(id domain.SessionID, from, to domain.AccountID, at time.Time) domain.EncryptedEnvelope {
	return domain.EncryptedEnvelope{
		SessionID:  id,
		Sender:     from,
		Receiver:   to,
		Ciphertext: []byte("ciphertext-" + string(id)),
		IsInitial:  true,
		Bootstrap:  &domain.BootstrapHeader{OneTimePrekeyID: "k7"},
		CreatedAt:  at.UTC().Truncate(time.Millisecond),
	}
}

func testBootstrap(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	now := time.Now()

	got, err := b.FetchLatestFor(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Store(ctx, "s-old", envelope("s-old", "alice", "bob", now.Add(-time.Minute))))
	require.NoError(t, b.Store(ctx, "s-new", envelope("s-new", "alice", "bob", now)))
	require.NoError(t, b.Store(ctx, "s-carol", envelope("s-carol", "carol", "bob", now.Add(-time.Second))))

	got, err = b.FetchLatestFor(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SessionID("s-new"), got.SessionID)
	require.NotNil(t, got.Bootstrap)
	assert.Equal(t, domain.OneTimePrekeyID("k7"), got.Bootstrap.OneTimePrekeyID)

	got, err = b.FetchLatestFrom(ctx, "bob", "carol")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SessionID("s-carol"), got.SessionID)

	// Repeated retrieval is tolerated until consumed.
	got, err = b.FetchLatestFrom(ctx, "bob", "carol")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, b.MarkConsumed(ctx, "s-carol"))
	got, err = b.FetchLatestFrom(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testSessionFlags(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, "s1", envelope("s1", "alice", "bob", time.Now())))
	require.NoError(t, b.Open(ctx, "s1", "alice", "bob"))

	info, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingEstablishment, info.State)

	require.NoError(t, b.Establish(ctx, "s1"))

	terminated, err := b.SetActive(ctx, "s1", "alice", false)
	require.NoError(t, err)
	assert.False(t, terminated)

	info, err = b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.Established, info.State)
	assert.False(t, info.InitiatorActive)
	assert.True(t, info.ResponderActive)

	_, err = b.SetActive(ctx, "s1", "mallory", false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	terminated, err = b.SetActive(ctx, "s1", "bob", false)
	require.NoError(t, err)
	assert.True(t, terminated)

	_, err = b.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	env, err := b.FetchLatestFor(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, env, "bootstrap must be purged with the session")
}

func testQueue(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env := envelope(domain.SessionID(fmt.Sprintf("m%d", i)), "alice", "bob", time.Now())
		env.IsInitial = false
		env.Bootstrap = nil
		require.NoError(t, b.Enqueue(ctx, env))
	}

	msgs, err := b.Fetch(ctx, "bob", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SessionID("m0"), msgs[0].SessionID)

	require.NoError(t, b.Ack(ctx, "bob", 2))
	msgs, err = b.Fetch(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.SessionID("m2"), msgs[0].SessionID)

	require.NoError(t, b.Ack(ctx, "bob", 5))
	msgs, err = b.Fetch(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
