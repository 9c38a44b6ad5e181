package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parley/internal/domain"
	"parley/internal/wire"
)

// listAccounts is the directory of everyone who has published a bundle.
func (s *Server) listAccounts(c *gin.Context) {
	const op = "accounts.list"
	ids, err := s.store.ListAccounts(c)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromAccounts(ids))
}

// peerIdentity returns an account's identity keys. Unlike fetchBundle it
// leaves the one-time pool alone, so it is not rate limited.
func (s *Server) peerIdentity(c *gin.Context) {
	const op = "accounts.identity"
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
	c.JSON(http.StatusOK, wire.FromPeer(bundle.Identity()))
}
