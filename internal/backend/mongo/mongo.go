package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"parley/internal/backend"
	"parley/internal/domain"
)

type otkDoc struct {
	ID  string `bson:"id"`
	Pub []byte `bson:"pub"`
}

type accountDoc struct {
	ID           string    `bson:"_id"`
	IdentityKey  []byte    `bson:"identity_key"`
	SigningKey   []byte    `bson:"signing_key"`
	SignedPrekey []byte    `bson:"signed_prekey"`
	Signature    []byte    `bson:"signature"`
	Updated      time.Time `bson:"updated"`
	OneTimeKeys  []otkDoc  `bson:"one_time_keys"`
}

type bootstrapDoc struct {
	ID        string    `bson:"_id"`
	Receiver  string    `bson:"receiver"`
	Sender    string    `bson:"sender"`
	CreatedAt time.Time `bson:"created_at"`
	Envelope  []byte    `bson:"envelope"`
}

type sessionDoc struct {
	ID          string          `bson:"_id"`
	Initiator   string          `bson:"initiator"`
	Responder   string          `bson:"responder"`
	Established bool            `bson:"established"`
	Active      map[string]bool `bson:"active"`
}

type messageDoc struct {
	Receiver string    `bson:"receiver"`
	Seq      time.Time `bson:"seq"`
	Envelope []byte    `bson:"envelope"`
}

// Store is the MongoDB relay backend. Each collection holds one concern:
// accounts (bundle plus embedded one-time pool), bootstraps, sessions and
// messages.
type Store struct {
	client     *mongo.Client
	accounts   *mongo.Collection
	bootstraps *mongo.Collection
	sessions   *mongo.Collection
	messages   *mongo.Collection
}

// New connects, pings and ensures indexes.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	db := cli.Database(dbName)
	s := &Store{
		client:     cli,
		accounts:   db.Collection("accounts"),
		bootstraps: db.Collection("bootstraps"),
		sessions:   db.Collection("sessions"),
		messages:   db.Collection("messages"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.bootstraps.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("mongo index bootstraps: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "seq", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongo index messages: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// ---------- PrekeyStore ----------

func (s *Store) PublishBundle(
	ctx context.Context,
	acct domain.AccountID,
	bundle domain.PublicBundle,
	pool []domain.OneTimePrekeyPublic,
) error {
	doc := accountDoc{
		ID:           acct.String(),
		IdentityKey:  bundle.IdentityKey.Slice(),
		SigningKey:   bundle.SigningKey.Slice(),
		SignedPrekey: bundle.SignedPrekey.Slice(),
		Signature:    bundle.SignedPrekeySignature,
		Updated:      time.Now().UTC(),
		OneTimeKeys:  toOTKDocs(pool),
	}
	_, err := s.accounts.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo publish %s: %w", acct, err)
	}
	return nil
}

func toOTKDocs(keys []domain.OneTimePrekeyPublic) []otkDoc {
	out := make([]otkDoc, 0, len(keys))
	for _, k := range keys {
		out = append(out, otkDoc{ID: k.ID.String(), Pub: k.Pub.Slice()})
	}
	return out
}

func (s *Store) GetBundle(ctx context.Context, acct domain.AccountID) (domain.PublicBundle, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, bson.M{"_id": acct.String()},
		options.FindOne().SetProjection(bson.M{"one_time_keys": 0})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PublicBundle{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PublicBundle{}, fmt.Errorf("mongo get bundle %s: %w", acct, err)
	}
	b := domain.PublicBundle{Account: acct, SignedPrekeySignature: doc.Signature}
	copy(b.IdentityKey[:], doc.IdentityKey)
	copy(b.SigningKey[:], doc.SigningKey)
	copy(b.SignedPrekey[:], doc.SignedPrekey)
	return b, nil
}

// AllocateOneTimeKey pops the head of the embedded pool in one
// FindOneAndUpdate, so the select and the remove are a single document write.
func (s *Store) AllocateOneTimeKey(ctx context.Context, acct domain.AccountID) (*domain.OneTimePrekeyPublic, error) {
	var doc accountDoc
	err := s.accounts.FindOneAndUpdate(ctx,
		bson.M{"_id": acct.String(), "one_time_keys.0": bson.M{"$exists": true}},
		bson.M{"$pop": bson.M{"one_time_keys": -1}},
		options.FindOneAndUpdate().
			SetProjection(bson.M{"one_time_keys": bson.M{"$slice": 1}}).
			SetReturnDocument(options.Before),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.GetBundle(ctx, acct); gerr != nil {
			return nil, gerr
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo allocate %s: %w", acct, err)
	}
	if len(doc.OneTimeKeys) == 0 {
		return nil, nil
	}
	k := &domain.OneTimePrekeyPublic{ID: domain.OneTimePrekeyID(doc.OneTimeKeys[0].ID)}
	copy(k.Pub[:], doc.OneTimeKeys[0].Pub)
	return k, nil
}

func (s *Store) DeleteOneTimeKey(ctx context.Context, acct domain.AccountID, id domain.OneTimePrekeyID) error {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": acct.String(), "one_time_keys.id": id.String()},
		bson.M{"$pull": bson.M{"one_time_keys": bson.M{"id": id.String()}}},
	)
	if err != nil {
		return fmt.Errorf("mongo delete otk %s: %w", acct, err)
	}
	if res.ModifiedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) AddOneTimeKeys(ctx context.Context, acct domain.AccountID, keys []domain.OneTimePrekeyPublic) error {
	if err := backend.CheckBatch(keys); err != nil {
		return err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID.String())
	}
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": acct.String(), "one_time_keys.id": bson.M{"$nin": ids}},
		bson.M{"$push": bson.M{"one_time_keys": bson.M{"$each": toOTKDocs(keys)}}},
	)
	if err != nil {
		return fmt.Errorf("mongo add otk %s: %w", acct, err)
	}
	if res.MatchedCount == 0 {
		if _, gerr := s.GetBundle(ctx, acct); gerr != nil {
			return gerr
		}
		return domain.ErrDuplicateOneTimeKey
	}
	return nil
}

func (s *Store) UpdateSignedPrekey(
	ctx context.Context,
	acct domain.AccountID,
	spk domain.SignedPrekeyPublic,
	at time.Time,
) error {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": acct.String()},
		bson.M{"$set": bson.M{"signed_prekey": spk.Pub.Slice(), "signature": spk.Signature, "updated": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongo rotate %s: %w", acct, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountID, error) {
	ids, err := s.accounts.Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo list accounts: %w", err)
	}
	out := make([]domain.AccountID, 0, len(ids))
	for _, id := range ids {
		if name, ok := id.(string); ok {
			out = append(out, domain.AccountID(name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) Status(ctx context.Context, acct domain.AccountID) (domain.PrekeyStatus, error) {
	var doc struct {
		Updated time.Time `bson:"updated"`
		Count   int       `bson:"count"`
	}
	cur, err := s.accounts.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": acct.String()}}},
		{{Key: "$project", Value: bson.M{"updated": 1, "count": bson.M{"$size": "$one_time_keys"}}}},
	})
	if err != nil {
		return domain.PrekeyStatus{}, fmt.Errorf("mongo status %s: %w", acct, err)
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return domain.PrekeyStatus{}, fmt.Errorf("mongo status %s: %w", acct, err)
		}
		return domain.PrekeyStatus{}, domain.ErrNotFound
	}
	if err := cur.Decode(&doc); err != nil {
		return domain.PrekeyStatus{}, fmt.Errorf("mongo status %s: %w", acct, err)
	}
	return domain.PrekeyStatus{SignedPrekeyUpdated: doc.Updated.UTC(), OneTimePrekeys: doc.Count}, nil
}

// ---------- BootstrapTransport ----------

func (s *Store) Store(ctx context.Context, id domain.SessionID, env domain.EncryptedEnvelope) error {
	blob, err := bson.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode bootstrap: %w", err)
	}
	doc := bootstrapDoc{
		ID:        id.String(),
		Receiver:  env.Receiver.String(),
		Sender:    env.Sender.String(),
		CreatedAt: env.CreatedAt.UTC(),
		Envelope:  blob,
	}
	_, err = s.bootstraps.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo store bootstrap %s: %w", id, err)
	}
	return nil
}

func (s *Store) FetchLatestFor(ctx context.Context, acct domain.AccountID) (*domain.EncryptedEnvelope, error) {
	return s.FetchLatestFrom(ctx, acct, "")
}

func (s *Store) FetchLatestFrom(
	ctx context.Context,
	acct domain.AccountID,
	sender domain.AccountID,
) (*domain.EncryptedEnvelope, error) {
	filter := bson.M{"receiver": acct.String()}
	if sender != "" {
		filter["sender"] = sender.String()
	}
	var doc bootstrapDoc
	err := s.bootstraps.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo fetch bootstrap %s: %w", acct, err)
	}
	var env domain.EncryptedEnvelope
	if err := bson.Unmarshal(doc.Envelope, &env); err != nil {
		return nil, fmt.Errorf("decode bootstrap %s: %w", doc.ID, err)
	}
	return &env, nil
}

func (s *Store) MarkConsumed(ctx context.Context, id domain.SessionID) error {
	if _, err := s.bootstraps.DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return fmt.Errorf("mongo consume %s: %w", id, err)
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
	_, err := s.sessions.InsertOne(ctx, sessionDoc{
		ID:        id.String(),
		Initiator: initiator.String(),
		Responder: responder.String(),
		Active:    map[string]bool{initiator.String(): true, responder.String(): true},
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.Invalid("session id", "already registered")
	}
	if err != nil {
		return fmt.Errorf("mongo open %s: %w", id, err)
	}
	return nil
}

func (s *Store) Establish(ctx context.Context, id domain.SessionID) error {
	res, err := s.sessions.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"established": true}})
	if err != nil {
		return fmt.Errorf("mongo establish %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetActive updates only the caller's field, then purges the session with a
// conditional delete that matches only when both flags are false.
func (s *Store) SetActive(ctx context.Context, id domain.SessionID, acct domain.AccountID, active bool) (bool, error) {
	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "$or": bson.A{
			bson.M{"initiator": acct.String()},
			bson.M{"responder": acct.String()},
		}},
		bson.M{"$set": bson.M{"active." + acct.String(): active}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return false, gerr
		}
		return false, domain.ErrForbidden
	}
	if err != nil {
		return false, fmt.Errorf("mongo set active %s: %w", id, err)
	}
	if doc.Active[doc.Initiator] || doc.Active[doc.Responder] {
		return false, nil
	}

	res, err := s.sessions.DeleteOne(ctx, bson.M{
		"_id":                      id.String(),
		"active." + doc.Initiator: false,
		"active." + doc.Responder: false,
	})
	if err != nil {
		return false, fmt.Errorf("mongo purge %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	if err := s.MarkConsumed(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SessionInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SessionInfo{}, fmt.Errorf("mongo get session %s: %w", id, err)
	}
	info := domain.SessionInfo{
		ID:              id,
		Initiator:       domain.AccountID(doc.Initiator),
		Responder:       domain.AccountID(doc.Responder),
		InitiatorActive: doc.Active[doc.Initiator],
		ResponderActive: doc.Active[doc.Responder],
		State:           domain.PendingEstablishment,
	}
	if doc.Established {
		info.State = domain.Established
	}
	return info, nil
}

// ---------- MessageQueue ----------

func (s *Store) Enqueue(ctx context.Context, env domain.EncryptedEnvelope) error {
	blob, err := bson.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = s.messages.InsertOne(ctx, messageDoc{Receiver: env.Receiver.String(), Seq: time.Now().UTC(), Envelope: blob})
	if err != nil {
		return fmt.Errorf("mongo enqueue %s: %w", env.Receiver, err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, acct domain.AccountID, limit int) ([]domain.EncryptedEnvelope, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.messages.Find(ctx, bson.M{"receiver": acct.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo fetch %s: %w", acct, err)
	}
	defer cur.Close(ctx)

	var out []domain.EncryptedEnvelope
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo fetch %s: %w", acct, err)
		}
		var env domain.EncryptedEnvelope
		if err := bson.Unmarshal(doc.Envelope, &env); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, env)
	}
	return out, cur.Err()
}

// Ack deletes the receiver's oldest count messages.
func (s *Store) Ack(ctx context.Context, acct domain.AccountID, count int) error {
	if count <= 0 {
		return nil
	}
	cur, err := s.messages.Find(ctx, bson.M{"receiver": acct.String()},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(count)).
			SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return fmt.Errorf("mongo ack %s: %w", acct, err)
	}
	var ids []struct {
		ID any `bson:"_id"`
	}
	if err := cur.All(ctx, &ids); err != nil {
		return fmt.Errorf("mongo ack %s: %w", acct, err)
	}
	if len(ids) == 0 {
		return nil
	}
	in := make(bson.A, 0, len(ids))
	for _, d := range ids {
		in = append(in, d.ID)
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": in}}); err != nil {
		return fmt.Errorf("mongo ack %s: %w", acct, err)
	}
	return nil
}
