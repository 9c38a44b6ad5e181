package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"parley/internal/backend"
	"parley/internal/backend/memory"
	"parley/internal/backend/mongo"
	"parley/internal/backend/redis"
	"parley/internal/config"
	"parley/internal/server"
)

// Relay is the assembled relay server and the backend it runs on.
type Relay struct {
	Server *server.Server
	Auth   *server.Authenticator
	close  func(context.Context) error
}

// Close releases the backend connection.
func (r *Relay) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}

// NewRelay connects the configured backend and builds the server on top.
func NewRelay(ctx context.Context, cfg *config.Relay, log logrus.FieldLogger) (*Relay, error) {
	store, closeFn, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.WithField("backend", cfg.Backend).Info("backend ready")

	auth := NewAuthenticator(cfg)
	srv := server.New(store, server.NewHub(), auth, log, server.Options{
		FetchRate:          rate.Limit(cfg.Fetch.RPS),
		FetchBurst:         cfg.Fetch.Burst,
		MaxSignedPrekeyAge: cfg.Prekeys.MaxSignedPrekeyAge,
		ReplenishThreshold: cfg.Prekeys.ReplenishThreshold,
	})
	return &Relay{Server: srv, Auth: auth, close: closeFn}, nil
}

// NewAuthenticator builds the token issuer/verifier from cfg.
func NewAuthenticator(cfg *config.Relay) *server.Authenticator {
	return server.NewAuthenticator([]byte(cfg.JWT.Secret), cfg.JWT.Issuer)
}

func openBackend(ctx context.Context, cfg *config.Relay) (backend.Backend, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		s, err := redis.New(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.BackendMongo:
		s, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, s.Close, nil
	default:
		return memory.New(), nil, nil
	}
}
