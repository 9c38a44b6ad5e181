package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/protocol/channel"
	"parley/internal/protocol/lifecycle"
	"parley/internal/protocol/x3dh"
	"parley/internal/util/memzero"
)

// Greeting is the bootstrap plaintext sealed into every initial envelope.
const Greeting = "Hello, this is a secure message!"

const (
	actionReused    = "reused"
	actionAccepted  = "accepted"
	actionInitiated = "initiated"
)

var (
	// ErrNoSession indicates there is no live local session with the peer.
	ErrNoSession = errors.New("no session with peer; start one first")

	// ErrNotEstablished is returned when sending on a session the peer has
	// not accepted yet.
	ErrNotEstablished = errors.New("session not yet accepted by peer")

	// ErrIdentityMismatch is returned by Accept when the bootstrap header
	// names an identity key other than the one the peer registered.
	ErrIdentityMismatch = errors.New("bootstrap identity does not match the peer's registered identity")
)

// Service drives the session lifecycle for one local account.
type Service struct {
	account  domain.AccountID
	ids      domain.IdentityStore
	keys     domain.LocalPrekeyStore
	sessions domain.SessionStore
	history  domain.HistoryStore
	relay    domain.RelayClient
	log      logrus.FieldLogger
	now      func() time.Time
}

// New constructs a session service acting as account.
func New(
	account domain.AccountID,
	ids domain.IdentityStore,
	keys domain.LocalPrekeyStore,
	sessions domain.SessionStore,
	history domain.HistoryStore,
	relay domain.RelayClient,
	log logrus.FieldLogger,
) *Service {
	return &Service{
		account:  account,
		ids:      ids,
		keys:     keys,
		sessions: sessions,
		history:  history,
		relay:    relay,
		log:      log.WithField("account", account),
		now:      time.Now,
	}
}

// Select returns a usable session with peer. An established session is
// reused without a new handshake. Otherwise a waiting bootstrap from peer is
// accepted, then a session we are still waiting on is reused, and only then
// is a new session initiated.
func (s *Service) Select(ctx context.Context, passphrase string, peer domain.AccountID) (domain.SelectResult, error) {
	sess, ok, err := s.live(ctx, peer)
	if err != nil {
		return domain.SelectResult{}, err
	}
	if ok && sess.State == domain.Established {
		return domain.SelectResult{Session: sess, Action: actionReused}, nil
	}

	accepted, err := s.Accept(ctx, passphrase, peer)
	if err != nil {
		return domain.SelectResult{}, err
	}
	if accepted != nil {
		return domain.SelectResult{Session: accepted.Session, Action: actionAccepted, Accept: accepted}, nil
	}
	if ok {
		return domain.SelectResult{Session: sess, Action: actionReused}, nil
	}

	sess, err = s.Initiate(ctx, passphrase, peer)
	if err != nil {
		return domain.SelectResult{}, err
	}
	return domain.SelectResult{Session: sess, Action: actionInitiated}, nil
}

// Initiate runs the handshake against peer's bundle, seals the greeting and
// hands the bootstrap envelope to the relay. The session starts out
// PendingEstablishment.
func (s *Service) Initiate(ctx context.Context, passphrase string, peer domain.AccountID) (domain.Session, error) {
	if peer == s.account {
		return domain.Session{}, domain.Invalid("peer", "cannot open a session with yourself")
	}

	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.Session{}, err
	}
	bundle, err := s.relay.FetchBundle(ctx, peer)
	if err != nil {
		return domain.Session{}, fmt.Errorf("fetch bundle: %w", err)
	}
	if bundle.Account != peer {
		return domain.Session{}, domain.Invalid("bundle.account", "does not match peer")
	}

	res, err := x3dh.Initiate(id, bundle)
	if err != nil {
		return domain.Session{}, err
	}
	log := s.log.WithField("peer", peer)
	if bundle.OneTimePrekey == nil {
		log.WithError(domain.ErrAllocationExhausted).Warn("continuing without a one-time prekey")
	}

	now := s.now().UTC()
	sess := domain.Session{
		ID:              lifecycle.NewSessionID(s.account, peer, now),
		Local:           s.account,
		Peer:            peer,
		Role:            domain.RoleInitiator,
		State:           domain.PendingEstablishment,
		Secret:          res.Secret,
		OneTimePrekeyID: res.OneTimePrekeyID,
		CreatedAt:       now,
	}

	ct, nonce, err := channel.Seal(sess.Secret, []byte(Greeting))
	if err != nil {
		return domain.Session{}, err
	}
	header := res.Header(id.XPub)
	env := domain.EncryptedEnvelope{
		SessionID:  sess.ID,
		Sender:     s.account,
		Receiver:   peer,
		Ciphertext: ct,
		Nonce:      nonce,
		IsInitial:  true,
		Bootstrap:  &header,
		CreatedAt:  now,
	}

	if err := s.sessions.SaveSession(sess); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	if err := s.relay.StoreBootstrap(ctx, env); err != nil {
		if derr := s.sessions.DeleteSession(sess.ID); derr != nil {
			log.WithError(derr).Warn("could not drop unsent session")
		}
		return domain.Session{}, fmt.Errorf("store bootstrap: %w", err)
	}

	s.record(sess, domain.DirectionOut, []byte(Greeting), now)

	log.WithFields(logrus.Fields{
		"session": sess.ID,
		"four_dh": res.OneTimePrekeyID != "",
	}).Info("session initiated")
	return sess, nil
}

// Accept fetches the newest bootstrap from peer and mirrors the handshake.
// It returns (nil, nil) when peer has no bootstrap waiting, and also when it
// declines one that peer withdrew or that we already ended. When both sides
// initiated, the session with the lower id wins.
func (s *Service) Accept(ctx context.Context, passphrase string, peer domain.AccountID) (*domain.AcceptResult, error) {
	env, err := s.relay.FetchBootstrap(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("fetch bootstrap: %w", err)
	}
	if env == nil {
		return nil, nil
	}
	if !env.IsInitial || env.Bootstrap == nil {
		return nil, domain.Invalid("bootstrap", "missing header")
	}
	if env.Sender != peer || env.Receiver != s.account {
		return nil, domain.Invalid("bootstrap", "not addressed from peer to us")
	}
	log := s.log.WithFields(logrus.Fields{"peer": peer, "session": env.SessionID})

	info, err := s.relay.SessionInfo(ctx, env.SessionID)
	if gone(err) {
		log.Debug("bootstrap without a session")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session info: %w", err)
	}
	if !info.ActiveFor(peer) {
		log.Info("peer withdrew the session")
		return nil, s.decline(ctx, log, env.SessionID)
	}

	registered, err := s.relay.PeerIdentity(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("peer identity: %w", err)
	}
	if env.Bootstrap.IdentityKey != registered.IdentityKey {
		log.Warn("bootstrap identity key is not the peer's registered key")
		return nil, ErrIdentityMismatch
	}

	sess, known, err := s.sessions.LoadSession(env.SessionID)
	if err != nil {
		return nil, err
	}
	if known && sess.State == domain.Terminated {
		log.Info("session already ended here; declining its bootstrap")
		return nil, s.decline(ctx, log, env.SessionID)
	}

	rival, hasRival, err := s.latest(peer)
	if err != nil {
		return nil, err
	}
	hasRival = hasRival && rival.ID != env.SessionID &&
		rival.Role == domain.RoleInitiator && rival.State == domain.PendingEstablishment
	if hasRival && rival.ID < env.SessionID {
		log.WithField("kept", rival.ID).Info("both sides initiated; keeping ours")
		return nil, s.decline(ctx, log, env.SessionID)
	}

	if !known {
		secret, err := s.respond(passphrase, *env.Bootstrap)
		if err != nil {
			return nil, err
		}
		sess = domain.Session{
			ID:              env.SessionID,
			Local:           s.account,
			Peer:            peer,
			Role:            domain.RoleResponder,
			Secret:          secret,
			OneTimePrekeyID: env.Bootstrap.OneTimePrekeyID,
			CreatedAt:       s.now().UTC(),
		}
	} else {
		log.Debug("reusing stored secret for known session")
	}

	plaintext, derr := channel.Open(sess.Secret, env.Ciphertext, env.Nonce)
	if derr != nil {
		log.WithError(derr).Warn("bootstrap did not open; session established anyway")
	}

	sess.State = domain.Established
	if err := s.sessions.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if opk := env.Bootstrap.OneTimePrekeyID; opk != "" && !known {
		s.retireOneTimeKey(ctx, log, opk)
	}
	if err := s.relay.ConsumeBootstrap(ctx, env.SessionID); err != nil {
		return nil, fmt.Errorf("consume bootstrap: %w", err)
	}
	if derr == nil && !known {
		s.record(sess, domain.DirectionIn, plaintext, env.CreatedAt)
	}

	if hasRival {
		log.WithField("dropped", rival.ID).Info("both sides initiated; taking theirs")
		if err := s.withdraw(ctx, rival); err != nil {
			log.WithError(err).Warn("could not withdraw our own bootstrap")
		}
	}

	log.Info("session accepted")
	return &domain.AcceptResult{Session: sess, Plaintext: plaintext, DecryptErr: derr}, nil
}

// respond loads the private halves named by header and mirrors the handshake.
func (s *Service) respond(passphrase string, header domain.BootstrapHeader) (domain.SharedSecret, error) {
	id, err := s.ids.LoadIdentity(passphrase)
	if err != nil {
		return domain.SharedSecret{}, err
	}
	spk, ok, err := s.keys.LoadSignedPrekey()
	if err != nil {
		return domain.SharedSecret{}, err
	}
	if !ok {
		return domain.SharedSecret{}, domain.Invalid("signed prekey", "not generated")
	}

	var opkPriv *domain.X25519Private
	if header.OneTimePrekeyID != "" {
		pair, ok, err := s.keys.LoadOneTimePrekey(header.OneTimePrekeyID)
		if err != nil {
			return domain.SharedSecret{}, err
		}
		if !ok {
			return domain.SharedSecret{}, domain.Invalid("one-time prekey", "unknown id "+header.OneTimePrekeyID.String())
		}
		opkPriv = &pair.Priv
		defer memzero.Zero(pair.Priv[:])
	}
	return x3dh.Respond(id, spk.Priv, opkPriv, header)
}

// retireOneTimeKey drops a used one-time key locally and on the relay. The
// relay normally removed it at allocation, so ErrNotFound there is expected.
func (s *Service) retireOneTimeKey(ctx context.Context, log logrus.FieldLogger, id domain.OneTimePrekeyID) {
	if err := s.keys.DeleteOneTimePrekey(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.WithError(err).Warn("could not delete local one-time prekey")
	}
	if err := s.relay.DeleteOneTimeKey(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.WithError(err).Warn("could not delete relay one-time prekey")
	}
}

// Send seals plaintext under the live session with peer and queues it.
func (s *Service) Send(ctx context.Context, peer domain.AccountID, plaintext []byte) error {
	sess, ok, err := s.live(ctx, peer)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSession
	}
	if sess.State != domain.Established {
		return ErrNotEstablished
	}

	ct, nonce, err := channel.Seal(sess.Secret, plaintext)
	if err != nil {
		return err
	}
	env := domain.EncryptedEnvelope{
		SessionID:  sess.ID,
		Sender:     s.account,
		Receiver:   peer,
		Ciphertext: ct,
		Nonce:      nonce,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.relay.SendMessage(ctx, env); err != nil {
		if errors.Is(err, domain.ErrStaleSession) {
			s.terminate(sess)
		}
		return fmt.Errorf("send message: %w", err)
	}
	s.record(sess, domain.DirectionOut, plaintext, env.CreatedAt)
	return nil
}

// Receive fetches up to limit queued messages, opens each under its session
// and acknowledges the batch. Failures are reported per message in Err.
func (s *Service) Receive(ctx context.Context, limit int) ([]domain.DecryptedMessage, error) {
	envs, err := s.relay.FetchMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if len(envs) == 0 {
		return nil, nil
	}

	out := make([]domain.DecryptedMessage, 0, len(envs))
	var logged []domain.HistoryEntry
	for _, env := range envs {
		msg := domain.DecryptedMessage{
			SessionID: env.SessionID,
			From:      env.Sender,
			To:        env.Receiver,
			At:        env.CreatedAt,
		}
		sess, ok, err := s.sessions.LoadSession(env.SessionID)
		switch {
		case err != nil:
			msg.Err = err
		case !ok || sess.State == domain.Terminated:
			msg.Err = domain.ErrStaleSession
		default:
			msg.Plaintext, msg.Err = channel.Open(sess.Secret, env.Ciphertext, env.Nonce)
			if msg.Err == nil && sess.State == domain.PendingEstablishment {
				// Only a responder that accepted can have sealed this.
				sess.State = domain.Established
				if err := s.sessions.SaveSession(sess); err != nil {
					s.log.WithError(err).Warn("could not record established session")
				}
			}
		}
		if msg.Err != nil {
			s.log.WithError(msg.Err).WithField("session", env.SessionID).Warn("message not opened")
		} else {
			logged = append(logged, domain.HistoryEntry{
				SessionID: env.SessionID,
				Peer:      env.Sender,
				Direction: domain.DirectionIn,
				Body:      msg.Plaintext,
				At:        env.CreatedAt,
			})
		}
		out = append(out, msg)
	}
	if err := s.history.AppendHistory(logged...); err != nil {
		s.log.WithError(err).Warn("could not record received messages")
	}

	if err := s.relay.AckMessages(ctx, len(envs)); err != nil {
		return out, fmt.Errorf("ack messages: %w", err)
	}
	return out, nil
}

// End clears our activity flag for the live session with peer and forgets
// the secret locally. The peer may keep sending until it ends too.
func (s *Service) End(ctx context.Context, peer domain.AccountID) error {
	sess, ok, err := s.latest(peer)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSession
	}
	if err := s.withdraw(ctx, sess); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"peer": peer, "session": sess.ID}).Info("session ended")
	return nil
}

// Sessions lists every local session record, newest first.
func (s *Service) Sessions() ([]domain.Session, error) {
	return s.sessions.ListSessions()
}

// History returns the last limit messages exchanged with peer, oldest first.
func (s *Service) History(peer domain.AccountID, limit int) ([]domain.HistoryEntry, error) {
	return s.history.History(peer, limit)
}

// Peers lists the other accounts registered with the relay.
func (s *Service) Peers(ctx context.Context) ([]domain.AccountID, error) {
	all, err := s.relay.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := all[:0]
	for _, a := range all {
		if a != s.account {
			out = append(out, a)
		}
	}
	return out, nil
}

// PeerFingerprint returns the fingerprint of peer's registered identity key,
// for comparing out of band.
func (s *Service) PeerFingerprint(ctx context.Context, peer domain.AccountID) (domain.Fingerprint, error) {
	id, err := s.relay.PeerIdentity(ctx, peer)
	if err != nil {
		return "", fmt.Errorf("peer identity: %w", err)
	}
	return crypto.Fingerprint(id.IdentityKey.Slice()), nil
}

// latest returns the newest non-terminated local session with peer.
func (s *Service) latest(peer domain.AccountID) (domain.Session, bool, error) {
	all, err := s.sessions.ListSessions()
	if err != nil {
		return domain.Session{}, false, err
	}
	for _, sess := range all {
		if sess.Peer == peer && sess.Local == s.account && sess.State != domain.Terminated {
			return sess, true, nil
		}
	}
	return domain.Session{}, false, nil
}

// live is latest checked against the relay. A session the relay has purged,
// or a pending one the peer declined, is terminated locally; a pending one is
// promoted once the peer accepted.
func (s *Service) live(ctx context.Context, peer domain.AccountID) (domain.Session, bool, error) {
	sess, ok, err := s.latest(peer)
	if err != nil || !ok {
		return domain.Session{}, false, err
	}
	info, err := s.relay.SessionInfo(ctx, sess.ID)
	if gone(err) {
		s.log.WithField("session", sess.ID).Info("session gone from relay")
		s.terminate(sess)
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("session info: %w", err)
	}
	if sess.State == domain.PendingEstablishment && !info.ActiveFor(peer) {
		s.log.WithField("session", sess.ID).Info("peer declined the session")
		return domain.Session{}, false, s.withdraw(ctx, sess)
	}
	if sess.State == domain.PendingEstablishment && lifecycle.Reuse(info.State) {
		sess.State = domain.Established
		if err := s.sessions.SaveSession(sess); err != nil {
			return domain.Session{}, false, err
		}
	}
	return sess, true, nil
}

// withdraw clears our flag for sess on the relay and terminates it here.
func (s *Service) withdraw(ctx context.Context, sess domain.Session) error {
	if err := s.relay.EndSession(ctx, sess.ID); err != nil && !gone(err) {
		return fmt.Errorf("end session: %w", err)
	}
	s.terminate(sess)
	return nil
}

// decline clears our flag on a session we will not accept. Its bootstrap is
// dropped once the initiator has ended it too.
func (s *Service) decline(ctx context.Context, log logrus.FieldLogger, id domain.SessionID) error {
	if err := s.relay.EndSession(ctx, id); err != nil && !gone(err) {
		return fmt.Errorf("decline session: %w", err)
	}
	log.Info("bootstrap declined")
	return nil
}

// record appends one message to the local history. Failures only cost the
// log entry.
func (s *Service) record(sess domain.Session, dir domain.Direction, body []byte, at time.Time) {
	err := s.history.AppendHistory(domain.HistoryEntry{
		SessionID: sess.ID,
		Peer:      sess.Peer,
		Direction: dir,
		Body:      body,
		At:        at,
	})
	if err != nil {
		s.log.WithError(err).WithField("session", sess.ID).Warn("could not record message")
	}
}

func gone(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleSession)
}

// terminate records sess as Terminated and wipes its secret.
func (s *Service) terminate(sess domain.Session) {
	sess.State = domain.Terminated
	memzero.Zero(sess.Secret[:])
	if err := s.sessions.SaveSession(sess); err != nil {
		s.log.WithError(err).WithField("session", sess.ID).Warn("could not record terminated session")
	}
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
