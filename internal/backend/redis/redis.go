package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"parley/internal/backend"
	"parley/internal/domain"
)

// Key layout:
//
//	accounts               set   every account with a bundle
//	bundle:{acct}          hash  identity, signing, spk, sig, updated
//	otk:{acct}             hash  id -> pub
//	otk-order:{acct}       list  ids in publish order
//	bootstrap:{sid}        string  envelope JSON
//	bootstraps:{acct}      zset  sid scored by created-at millis
//	session:{sid}          hash  initiator, responder, established, active:{acct}
//	queue:{acct}           list  envelope JSON
const (
	accountsKey      = "accounts"
	bundlePrefix     = "bundle:"
	otkPrefix        = "otk:"
	otkOrderPrefix   = "otk-order:"
	bootstrapPrefix  = "bootstrap:"
	bootstrapsPrefix = "bootstraps:"
	sessionPrefix    = "session:"
	queuePrefix      = "queue:"
)

// allocateScript pops ids in publish order until one is still present in the
// pool hash, then removes and returns it. Redis runs scripts atomically, so
// no two callers can receive the same id.
var allocateScript = redis.NewScript(`
while true do
  local id = redis.call("LPOP", KEYS[2])
  if not id then return false end
  local pub = redis.call("HGET", KEYS[1], id)
  if pub then
    redis.call("HDEL", KEYS[1], id)
    return {id, pub}
  end
end
`)

// setActiveScript writes one participant's flag and purges the session and its
// bootstrap once both flags are "0". Returns -1 for unknown sessions, -2 for
// outsiders, 1 when purged and 0 otherwise.
var setActiveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
local ini = redis.call("HGET", KEYS[1], "initiator")
local res = redis.call("HGET", KEYS[1], "responder")
if ARGV[1] ~= ini and ARGV[1] ~= res then return -2 end
redis.call("HSET", KEYS[1], "active:" .. ARGV[1], ARGV[2])
local a = redis.call("HGET", KEYS[1], "active:" .. ini)
local b = redis.call("HGET", KEYS[1], "active:" .. res)
if a == "0" and b == "0" then
  redis.call("DEL", KEYS[1], KEYS[2])
  redis.call("ZREM", ARGV[4] .. res, ARGV[3])
  redis.call("ZREM", ARGV[4] .. ini, ARGV[3])
  return 1
end
return 0
`)

// openScript registers a session in one step. Returns 0 when the id is taken.
var openScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("HSET", KEYS[1],
  "initiator", ARGV[1], "responder", ARGV[2], "established", "0",
  "active:" .. ARGV[1], "1", "active:" .. ARGV[2], "1")
return 1
`)

// establishScript sets the established field only on a session that still
// exists, so a purge racing with it cannot leave a partial hash behind.
var establishScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
redis.call("HSET", KEYS[1], "established", "1")
return 1
`)

// Store is the Redis relay backend.
type Store struct {
	cli *redis.Client
}

// New connects to addr and checks the connection.
func New(ctx context.Context, addr string) (*Store, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Store{cli: cli}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(cli *redis.Client) *Store { return &Store{cli: cli} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.cli.Close() }

// ---------- PrekeyStore ----------

func (s *Store) PublishBundle(
	ctx context.Context,
	acct domain.AccountID,
	bundle domain.PublicBundle,
	pool []domain.OneTimePrekeyPublic,
) error {
	otkKey, orderKey := otkPrefix+acct.String(), otkOrderPrefix+acct.String()
	_, err := s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, bundlePrefix+acct.String(), map[string]any{
			"identity": bundle.IdentityKey.Slice(),
			"signing":  bundle.SigningKey.Slice(),
			"spk":      bundle.SignedPrekey.Slice(),
			"sig":      bundle.SignedPrekeySignature,
			"updated":  time.Now().UnixMilli(),
		})
		p.SAdd(ctx, accountsKey, acct.String())
		p.Del(ctx, otkKey, orderKey)
		pushKeys(ctx, p, otkKey, orderKey, pool)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", acct, err)
	}
	return nil
}

func pushKeys(ctx context.Context, p redis.Pipeliner, otkKey, orderKey string, keys []domain.OneTimePrekeyPublic) {
	if len(keys) == 0 {
		return
	}
	fields := make(map[string]any, len(keys))
	ids := make([]any, 0, len(keys))
	for _, k := range keys {
		fields[k.ID.String()] = k.Pub.Slice()
		ids = append(ids, k.ID.String())
	}
	p.HSet(ctx, otkKey, fields)
	p.RPush(ctx, orderKey, ids...)
}

func (s *Store) GetBundle(ctx context.Context, acct domain.AccountID) (domain.PublicBundle, error) {
	vals, err := s.cli.HGetAll(ctx, bundlePrefix+acct.String()).Result()
	if err != nil {
		return domain.PublicBundle{}, fmt.Errorf("redis get bundle %s: %w", acct, err)
	}
	if len(vals) == 0 {
		return domain.PublicBundle{}, domain.ErrNotFound
	}
	b := domain.PublicBundle{Account: acct, SignedPrekeySignature: []byte(vals["sig"])}
	copy(b.IdentityKey[:], vals["identity"])
	copy(b.SigningKey[:], vals["signing"])
	copy(b.SignedPrekey[:], vals["spk"])
	return b, nil
}

func (s *Store) AllocateOneTimeKey(ctx context.Context, acct domain.AccountID) (*domain.OneTimePrekeyPublic, error) {
	exists, err := s.cli.Exists(ctx, bundlePrefix+acct.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis allocate %s: %w", acct, err)
	}
	if exists == 0 {
		return nil, domain.ErrNotFound
	}

	res, err := allocateScript.Run(ctx, s.cli, []string{otkPrefix + acct.String(), otkOrderPrefix + acct.String()}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis allocate %s: %w", acct, err)
	}
	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("redis allocate %s: unexpected reply %T", acct, res)
	}
	id, _ := pair[0].(string)
	pub, _ := pair[1].(string)
	k := &domain.OneTimePrekeyPublic{ID: domain.OneTimePrekeyID(id)}
	copy(k.Pub[:], pub)
	return k, nil
}

func (s *Store) DeleteOneTimeKey(ctx context.Context, acct domain.AccountID, id domain.OneTimePrekeyID) error {
	n, err := s.cli.HDel(ctx, otkPrefix+acct.String(), id.String()).Result()
	if err != nil {
		return fmt.Errorf("redis delete otk %s: %w", acct, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	// The allocate script skips ids missing from the hash, so the order list
	// may keep a stale entry.
	return nil
}

func (s *Store) AddOneTimeKeys(ctx context.Context, acct domain.AccountID, keys []domain.OneTimePrekeyPublic) error {
	if err := backend.CheckBatch(keys); err != nil {
		return err
	}
	if err := s.requireAccount(ctx, acct); err != nil {
		return err
	}
	otkKey, orderKey := otkPrefix+acct.String(), otkOrderPrefix+acct.String()

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID.String())
	}
	present, err := s.cli.HMGet(ctx, otkKey, ids...).Result()
	if err != nil {
		return fmt.Errorf("redis add otk %s: %w", acct, err)
	}
	for _, v := range present {
		if v != nil {
			return domain.ErrDuplicateOneTimeKey
		}
	}

	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		pushKeys(ctx, p, otkKey, orderKey, keys)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add otk %s: %w", acct, err)
	}
	return nil
}

func (s *Store) UpdateSignedPrekey(
	ctx context.Context,
	acct domain.AccountID,
	spk domain.SignedPrekeyPublic,
	at time.Time,
) error {
	if err := s.requireAccount(ctx, acct); err != nil {
		return err
	}
	err := s.cli.HSet(ctx, bundlePrefix+acct.String(), map[string]any{
		"spk":     spk.Pub.Slice(),
		"sig":     spk.Signature,
		"updated": at.UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis rotate %s: %w", acct, err)
	}
	return nil
}

func (s *Store) Status(ctx context.Context, acct domain.AccountID) (domain.PrekeyStatus, error) {
	updated, err := s.cli.HGet(ctx, bundlePrefix+acct.String(), "updated").Result()
	if errors.Is(err, redis.Nil) {
		return domain.PrekeyStatus{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PrekeyStatus{}, fmt.Errorf("redis status %s: %w", acct, err)
	}
	ms, err := strconv.ParseInt(updated, 10, 64)
	if err != nil {
		return domain.PrekeyStatus{}, fmt.Errorf("redis status %s: %w", acct, err)
	}
	n, err := s.cli.HLen(ctx, otkPrefix+acct.String()).Result()
	if err != nil {
		return domain.PrekeyStatus{}, fmt.Errorf("redis status %s: %w", acct, err)
	}
	return domain.PrekeyStatus{SignedPrekeyUpdated: time.UnixMilli(ms).UTC(), OneTimePrekeys: int(n)}, nil
}

// ListAccounts returns every account with a published bundle, sorted.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountID, error) {
	names, err := s.cli.SMembers(ctx, accountsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list accounts: %w", err)
	}
	sort.Strings(names)
	out := make([]domain.AccountID, 0, len(names))
	for _, n := range names {
		out = append(out, domain.AccountID(n))
	}
	return out, nil
}

func (s *Store) requireAccount(ctx context.Context, acct domain.AccountID) error {
	n, err := s.cli.Exists(ctx, bundlePrefix+acct.String()).Result()
	if err != nil {
		return fmt.Errorf("redis exists %s: %w", acct, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---------- BootstrapTransport ----------

func (s *Store) Store(ctx context.Context, id domain.SessionID, env domain.EncryptedEnvelope) error {
	blob, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode bootstrap: %w", err)
	}
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, bootstrapPrefix+id.String(), blob, 0)
		p.ZAdd(ctx, bootstrapsPrefix+env.Receiver.String(), &redis.Z{
			Score:  float64(env.CreatedAt.UnixMilli()),
			Member: id.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store bootstrap %s: %w", id, err)
	}
	return nil
}

func (s *Store) FetchLatestFor(ctx context.Context, acct domain.AccountID) (*domain.EncryptedEnvelope, error) {
	return s.FetchLatestFrom(ctx, acct, "")
}

// FetchLatestFrom walks the receiver's inbox newest first; an empty sender
// matches any.
func (s *Store) FetchLatestFrom(
	ctx context.Context,
	acct domain.AccountID,
	sender domain.AccountID,
) (*domain.EncryptedEnvelope, error) {
	ids, err := s.cli.ZRevRange(ctx, bootstrapsPrefix+acct.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis fetch bootstrap %s: %w", acct, err)
	}
	for _, id := range ids {
		blob, err := s.cli.Get(ctx, bootstrapPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis fetch bootstrap %s: %w", id, err)
		}
		var env domain.EncryptedEnvelope
		if err := json.Unmarshal(blob, &env); err != nil {
			return nil, fmt.Errorf("decode bootstrap %s: %w", id, err)
		}
		if sender == "" || env.Sender == sender {
			return &env, nil
		}
	}
	return nil, nil
}

func (s *Store) MarkConsumed(ctx context.Context, id domain.SessionID) error {
	blob, err := s.cli.Get(ctx, bootstrapPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis consume %s: %w", id, err)
	}
	var env domain.EncryptedEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return fmt.Errorf("decode bootstrap %s: %w", id, err)
	}
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, bootstrapPrefix+id.String())
		p.ZRem(ctx, bootstrapsPrefix+env.Receiver.String(), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis consume %s: %w", id, err)
	}
	return nil
}

// ---------- SessionRegistry ----------

func (s *Store) Open(ctx context.Context, id domain.SessionID, initiator, responder domain.AccountID) error {
	switch {
	case id == "":
		return domain.Invalid("session id", "empty")
	case initiator == "" || responder == "" || initiator == responder:
		return domain.Invalid("participants", "need two distinct accounts")
	}
	ok, err := openScript.Run(ctx, s.cli, []string{sessionPrefix + id.String()},
		initiator.String(), responder.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis open %s: %w", id, err)
	}
	if ok == 0 {
		return domain.Invalid("session id", "already registered")
	}
	return nil
}

func (s *Store) Establish(ctx context.Context, id domain.SessionID) error {
	ok, err := establishScript.Run(ctx, s.cli, []string{sessionPrefix + id.String()}).Int()
	if err != nil {
		return fmt.Errorf("redis establish %s: %w", id, err)
	}
	if ok == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id domain.SessionID, acct domain.AccountID, active bool) (bool, error) {
	flag := "0"
	if active {
		flag = "1"
	}
	res, err := setActiveScript.Run(ctx, s.cli,
		[]string{sessionPrefix + id.String(), bootstrapPrefix + id.String()},
		acct.String(), flag, id.String(), bootstrapsPrefix,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set active %s: %w", id, err)
	}
	switch res {
	case -1:
		return false, domain.ErrNotFound
	case -2:
		return false, domain.ErrForbidden
	}
	return res == 1, nil
}

func (s *Store) Get(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	vals, err := s.cli.HGetAll(ctx, sessionPrefix+id.String()).Result()
	if err != nil {
		return domain.SessionInfo{}, fmt.Errorf("redis get session %s: %w", id, err)
	}
	if len(vals) == 0 {
		return domain.SessionInfo{}, domain.ErrNotFound
	}
	info := domain.SessionInfo{
		ID:        id,
		Initiator: domain.AccountID(vals["initiator"]),
		Responder: domain.AccountID(vals["responder"]),
	}
	info.InitiatorActive = vals["active:"+info.Initiator.String()] == "1"
	info.ResponderActive = vals["active:"+info.Responder.String()] == "1"
	switch {
	case !info.InitiatorActive && !info.ResponderActive:
		info.State = domain.Terminated
	case vals["established"] == "1":
		info.State = domain.Established
	default:
		info.State = domain.PendingEstablishment
	}
	return info, nil
}

// ---------- MessageQueue ----------

func (s *Store) Enqueue(ctx context.Context, env domain.EncryptedEnvelope) error {
	blob, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.cli.RPush(ctx, queuePrefix+env.Receiver.String(), blob).Err(); err != nil {
		return fmt.Errorf("redis enqueue %s: %w", env.Receiver, err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, acct domain.AccountID, limit int) ([]domain.EncryptedEnvelope, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	blobs, err := s.cli.LRange(ctx, queuePrefix+acct.String(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis fetch %s: %w", acct, err)
	}
	out := make([]domain.EncryptedEnvelope, 0, len(blobs))
	for _, b := range blobs {
		var env domain.EncryptedEnvelope
		if err := json.Unmarshal([]byte(b), &env); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *Store) Ack(ctx context.Context, acct domain.AccountID, count int) error {
	if count <= 0 {
		return nil
	}
	if err := s.cli.LTrim(ctx, queuePrefix+acct.String(), int64(count), -1).Err(); err != nil {
		return fmt.Errorf("redis ack %s: %w", acct, err)
	}
	return nil
}
