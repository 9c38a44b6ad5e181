package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parley/internal/domain"
	"parley/internal/protocol/keybundle"
	"parley/internal/protocol/x3dh"
	"parley/internal/wire"
)

// publishBundle replaces the caller's bundle and pool. The signed prekey must
// verify before anything is stored.
func (s *Server) publishBundle(c *gin.Context) {
	const op = "keys.publish"
	me := caller(c)

	var req wire.PublishRequest
	if err := bind(c, &req); err != nil {
		s.writeError(c, op, err)
		return
	}
	if req.Bundle.Account != "" && domain.AccountID(req.Bundle.Account) != me {
		s.writeError(c, op, domain.ErrForbidden)
		return
	}
	bundle, err := req.Bundle.ToDomain()
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := x3dh.VerifySignedPrekey(bundle); err != nil {
		s.writeError(c, op, err)
		return
	}
	pool, err := wire.ToOneTimePrekeys(req.OneTimePrekeys)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.PublishBundle(c, me, bundle, pool); err != nil {
		s.writeError(c, op, err)
		return
	}
	s.log.WithFields(logrus.Fields{"account": me, "one_time_prekeys": len(pool)}).Info("bundle published")
	c.Status(http.StatusNoContent)
}

// fetchBundle returns a peer's bundle with one freshly allocated one-time
// prekey. An exhausted pool is not an error; the bundle goes out without one.
func (s *Server) fetchBundle(c *gin.Context) {
	const op = "keys.fetch"
	peer := domain.AccountID(c.Param("account"))
	if !wire.ValidAccount(peer.String()) {
		s.writeError(c, op, domain.Invalid("account", "malformed"))
		return
	}

	bundle, err := s.store.GetBundle(c, peer)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	otk, err := s.store.AllocateOneTimeKey(c, peer)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if otk == nil {
		s.log.WithFields(logrus.Fields{"account": peer, "by": caller(c)}).Warn("one-time prekey pool exhausted")
	}
	bundle.OneTimePrekey = otk
	c.JSON(http.StatusOK, wire.FromBundle(bundle))
}

func (s *Server) addOneTimeKeys(c *gin.Context) {
	const op = "keys.add"
	var req wire.OneTimePrekeys
	if err := bind(c, &req); err != nil {
		s.writeError(c, op, err)
		return
	}
	keys, err := wire.ToOneTimePrekeys(req.Keys)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.AddOneTimeKeys(c, caller(c), keys); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteOneTimeKey(c *gin.Context) {
	const op = "keys.delete"
	id := domain.OneTimePrekeyID(c.Param("id"))
	if err := s.store.DeleteOneTimeKey(c, caller(c), id); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// updateSignedPrekey rotates the caller's signed prekey after checking the
// new signature against the stored signing key.
func (s *Server) updateSignedPrekey(c *gin.Context) {
	const op = "keys.rotate"
	me := caller(c)

	var req wire.SignedPrekey
	if err := bind(c, &req); err != nil {
		s.writeError(c, op, err)
		return
	}
	spk, err := req.ToDomain()
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	current, err := s.store.GetBundle(c, me)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	current.SignedPrekey = spk.Pub
	current.SignedPrekeySignature = spk.Signature
	if err := x3dh.VerifySignedPrekey(current); err != nil {
		s.writeError(c, op, err)
		return
	}
	if err := s.store.UpdateSignedPrekey(c, me, spk, s.opts.Now()); err != nil {
		s.writeError(c, op, err)
		return
	}
	s.log.WithField("account", me).Info("signed prekey rotated")
	c.Status(http.StatusNoContent)
}

func (s *Server) prekeyStatus(c *gin.Context) {
	const op = "keys.status"
	st, err := s.store.Status(c, caller(c))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromAdvice(domain.PrekeyAdvice{
		Status:    st,
		Rotate:    keybundle.NeedsRotation(st, s.opts.MaxSignedPrekeyAge, s.opts.Now()),
		Replenish: keybundle.NeedsReplenish(st, s.opts.ReplenishThreshold),
	}))
}
