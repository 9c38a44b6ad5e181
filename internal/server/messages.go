package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parley/internal/domain"
	"parley/internal/wire"
)

const maxFetch = 100

// sendMessage queues an ordinary envelope. Sending on a purged session, or
// one the sender has already ended, is StaleSession.
func (s *Server) sendMessage(c *gin.Context) {
	const op = "messages.send"
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
	if env.IsInitial {
		s.writeError(c, op, domain.Invalid("envelope", "initial envelopes go to /v1/sessions"))
		return
	}
	if env.Sender != me {
		s.writeError(c, op, domain.ErrForbidden)
		return
	}

	info, err := s.participantInfo(c, env.SessionID)
	if err != nil {
		s.writeError(c, op, staleIfGone(err))
		return
	}
	if info.PeerOf(me) != env.Receiver {
		s.writeError(c, op, domain.ErrForbidden)
		return
	}
	if (me == info.Initiator && !info.InitiatorActive) || (me == info.Responder && !info.ResponderActive) {
		s.writeError(c, op, domain.ErrStaleSession)
		return
	}

	env.CreatedAt = s.opts.Now().UTC()
	if err := s.store.Enqueue(c, env); err != nil {
		s.writeError(c, op, err)
		return
	}
	s.notify(c, env.Receiver, domain.Notification{
		Kind:      domain.NotifyNewMessage,
		From:      me,
		SessionID: env.SessionID,
		At:        env.CreatedAt,
	})
	c.Status(http.StatusAccepted)
}

func (s *Server) fetchMessages(c *gin.Context) {
	const op = "messages.fetch"
	limit := maxFetch
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			s.writeError(c, op, domain.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxFetch)
	}
	msgs, err := s.store.Fetch(c, caller(c), limit)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromEnvelopes(msgs))
}

func (s *Server) ackMessages(c *gin.Context) {
	const op = "messages.ack"
	var req wire.Count
	if err := bind(c, &req); err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.Ack(c, caller(c), req.Count); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}
