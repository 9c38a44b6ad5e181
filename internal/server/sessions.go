package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parley/internal/domain"
	"parley/internal/wire"
)

// storeBootstrap registers a new session and keeps its initial envelope
// until the responder picks it up.
func (s *Server) storeBootstrap(c *gin.Context) {
	const op = "sessions.store"
	me := caller(c)

	var req wire.Envelope
	if err := bind(c, &req); err != nil {
		s.writeError(c, op, err)
		return
	}
	env, err := req.ToDomain()
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if !env.IsInitial {
		s.writeError(c, op, domain.Invalid("envelope", "bootstrap must be initial"))
		return
	}
	if env.Sender != me {
		s.writeError(c, op, domain.ErrForbidden)
		return
	}
	if _, err := s.store.GetBundle(c, env.Receiver); err != nil {
		s.writeError(c, op, err)
		return
	}
	// The header identity must be the one the sender registered, or the
	// responder would key the session to whoever made it up.
	own, err := s.store.GetBundle(c, env.Sender)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if env.Bootstrap.IdentityKey != own.IdentityKey {
		s.writeError(c, op, domain.Invalid("identity_key", "does not match the sender's registered identity"))
		return
	}

	env.CreatedAt = s.opts.Now().UTC()
	if err := s.store.Open(c, env.SessionID, env.Sender, env.Receiver); err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.Store(c, env.SessionID, env); err != nil {
		s.writeError(c, op, err)
		return
	}
	s.log.WithFields(logrus.Fields{"session": env.SessionID, "from": me, "to": env.Receiver}).Info("session started")
	s.notify(c, env.Receiver, domain.Notification{
		Kind:      domain.NotifySessionStarted,
		From:      me,
		SessionID: env.SessionID,
		At:        env.CreatedAt,
	})
	c.Status(http.StatusCreated)
}

// fetchBootstrap returns the newest bootstrap addressed to the caller,
// optionally narrowed to one sender.
func (s *Server) fetchBootstrap(c *gin.Context) {
	const op = "sessions.bootstrap"
	me := caller(c)
	from := domain.AccountID(c.Query("from"))

	var (
		env *domain.EncryptedEnvelope
		err error
	)
	if from == "" {
		env, err = s.store.FetchLatestFor(c, me)
	} else {
		env, err = s.store.FetchLatestFrom(c, me, from)
	}
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if env == nil {
		s.writeError(c, op, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, wire.FromEnvelope(*env))
}

// consumeBootstrap is called by the responder once it has derived the
// secret. The bootstrap is dropped and the session becomes Established.
func (s *Server) consumeBootstrap(c *gin.Context) {
	const op = "sessions.consume"
	id := domain.SessionID(c.Param("id"))

	info, err := s.participantInfo(c, id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if info.Responder != caller(c) {
		s.writeError(c, op, domain.ErrForbidden)
		return
	}
	if err := s.store.MarkConsumed(c, id); err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.Establish(c, id); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionInfo(c *gin.Context) {
	const op = "sessions.info"
	info, err := s.participantInfo(c, domain.SessionID(c.Param("id")))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromSessionInfo(info))
}

// endSession clears only the caller's activity flag. Once both flags are
// clear the backend purges the session.
func (s *Server) endSession(c *gin.Context) {
	const op = "sessions.end"
	me := caller(c)
	id := domain.SessionID(c.Param("id"))

	info, err := s.participantInfo(c, id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	terminated, err := s.store.SetActive(c, id, me, false)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if terminated {
		if err := s.store.MarkConsumed(c, id); err != nil {
			s.writeError(c, op, err)
			return
		}
	}
	s.log.WithFields(logrus.Fields{"session": id, "account": me, "terminated": terminated}).Info("session ended")
	s.notify(c, info.PeerOf(me), domain.Notification{
		Kind:      domain.NotifySessionEnded,
		From:      me,
		SessionID: id,
		At:        s.opts.Now().UTC(),
	})
	c.JSON(http.StatusOK, wire.EndResult{Terminated: terminated})
}

// participantInfo hides sessions from non-participants behind ErrNotFound.
func (s *Server) participantInfo(c *gin.Context, id domain.SessionID) (domain.SessionInfo, error) {
	info, err := s.store.Get(c, id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if !info.Has(caller(c)) {
		return domain.SessionInfo{}, domain.ErrNotFound
	}
	return info, nil
}

// staleIfGone turns a missing session into ErrStaleSession.
func staleIfGone(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrStaleSession
	}
	return err
}
