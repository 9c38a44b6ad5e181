package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"parley/internal/backend"
	"parley/internal/domain"
	"parley/internal/protocol/keybundle"
)

// Options tunes the relay.
type Options struct {
	FetchRate          rate.Limit
	FetchBurst         int
	MaxSignedPrekeyAge time.Duration
	ReplenishThreshold int
	Now                func() time.Time
}

func (o *Options) defaults() {
	if o.FetchRate <= 0 {
		o.FetchRate = rate.Limit(5)
	}
	if o.FetchBurst <= 0 {
		o.FetchBurst = 10
	}
	if o.MaxSignedPrekeyAge <= 0 {
		o.MaxSignedPrekeyAge = keybundle.RotationAge
	}
	if o.ReplenishThreshold <= 0 {
		o.ReplenishThreshold = keybundle.ReplenishThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Server is the relay's HTTP surface. It never sees session secrets or
// plaintext, only public keys and sealed envelopes.
type Server struct {
	store  backend.Backend
	hub    *Hub
	auth   *Authenticator
	log    logrus.FieldLogger
	opts   Options
	fetch  *multiLimiter
	engine *gin.Engine
}

// New builds the server and its routes.
func New(store backend.Backend, hub *Hub, auth *Authenticator, log logrus.FieldLogger, opts Options) *Server {
	opts.defaults()
	s := &Server{
		store: store,
		hub:   hub,
		auth:  auth,
		log:   log,
		opts:  opts,
		fetch: newMultiLimiter(opts.FetchRate, opts.FetchBurst, 10*time.Minute),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	v1 := r.Group("/v1")
	v1.Use(s.auth.Middleware())
	{
		v1.GET("/accounts", s.listAccounts)
		v1.GET("/accounts/:account", s.peerIdentity)

		keys := v1.Group("/keys")
		keys.POST("", s.publishBundle)
		keys.GET("/status", s.prekeyStatus)
		keys.POST("/otk", s.addOneTimeKeys)
		keys.DELETE("/otk/:id", s.deleteOneTimeKey)
		keys.PUT("/signed", s.updateSignedPrekey)
		keys.GET("/:account", s.fetch.middleware(), s.fetchBundle)

		sessions := v1.Group("/sessions")
		sessions.POST("", s.storeBootstrap)
		sessions.GET("/bootstrap", s.fetchBootstrap)
		sessions.GET("/:id", s.sessionInfo)
		sessions.DELETE("/:id/bootstrap", s.consumeBootstrap)
		sessions.POST("/:id/end", s.endSession)

		messages := v1.Group("/messages")
		messages.POST("", s.sendMessage)
		messages.GET("", s.fetchMessages)
		messages.POST("/ack", s.ackMessages)

		v1.GET("/events", s.events)
	}
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if a, ok := c.Get(accountKey); ok {
			entry = entry.WithField("account", a)
		}
		entry.Debug("request")
	}
}

func (s *Server) notify(ctx context.Context, to domain.AccountID, n domain.Notification) {
	if err := s.hub.Notify(ctx, to, n); err != nil {
		s.log.WithError(err).WithField("account", to).Warn("notify failed")
	}
}
