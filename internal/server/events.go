package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"parley/internal/wire"
)

const keepAlive = 25 * time.Second

// events streams the caller's notifications as server-sent events. Each
// event is named after the notification kind.
func (s *Server) events(c *gin.Context) {
	me := caller(c)
	ch, cancel := s.hub.Subscribe(me)
	defer cancel()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	s.log.WithField("account", me).Debug("event stream opened")
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(io.Writer) bool {
		select {
		case n := <-ch:
			c.SSEvent(string(n.Kind), wire.FromNotification(n))
			return true
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	s.log.WithField("account", me).Debug("event stream closed")
}
