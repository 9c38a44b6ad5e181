package app

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"parley/internal/relay"
	identitysvc "parley/internal/services/identity"
	prekeysvc "parley/internal/services/prekey"
	sessionsvc "parley/internal/services/session"
	"parley/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Identity *identitysvc.Service
	Prekeys  *prekeysvc.Service
	Sessions *sessionsvc.Service
	Relay    *relay.HTTP
	IDStore  *store.IdentityFileStore
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	// File-based stores
	identityStore := store.NewIdentityFileStore(cfg.Home)
	prekeyStore := store.NewPrekeyFileStore(cfg.Home)
	sessionStore := store.NewSessionFileStore(cfg.Home)
	historyStore := store.NewHistoryFileStore(cfg.Home)

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// Relay client (uses provided HTTP client)
	rc := relay.NewHTTP(cfg.RelayURL, cfg.Token, httpClient)

	// High-level services
	return &Wire{
		Identity: identitysvc.New(identityStore, log),
		Prekeys:  prekeysvc.New(identityStore, prekeyStore, rc, log),
		Sessions: sessionsvc.New(cfg.Account, identityStore, prekeyStore, sessionStore, historyStore, rc, log),
		Relay:    rc,
		IDStore:  identityStore,
	}, nil
}
