package app

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"parley/internal/domain"
)

// Config holds runtime wiring options for building the client.
type Config struct {
	Home     string           // config directory, e.g. $HOME/.parley
	RelayURL string           // relay base URL, e.g. http://127.0.0.1:8080
	Account  domain.AccountID // account the token was issued for
	Token    string           // relay bearer token
	HTTP     *http.Client     // optional; defaults to http.DefaultClient
	Log      logrus.FieldLogger
}
