package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"parley/internal/domain"
	"parley/internal/wire"
)

// HTTP talks to the relay's /v1 API as one account.
type HTTP struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// NewHTTP returns a client for base authenticating with token.
func NewHTTP(base, token string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, Token: token, HTTP: client}
}

var _ domain.RelayClient = (*HTTP)(nil)

// ---------- prekeys ----------

func (c *HTTP) PublishBundle(ctx context.Context, bundle domain.PublicBundle, pool []domain.OneTimePrekeyPublic) error {
	return c.send(ctx, http.MethodPost, "/v1/keys", wire.PublishRequest{
		Bundle:         wire.FromBundle(bundle),
		OneTimePrekeys: wire.FromOneTimePrekeys(pool),
	}, nil)
}

func (c *HTTP) FetchBundle(ctx context.Context, peer domain.AccountID) (domain.PublicBundle, error) {
	var out wire.Bundle
	if err := c.send(ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(peer.String()), nil, &out); err != nil {
		return domain.PublicBundle{}, err
	}
	return out.ToDomain()
}

func (c *HTTP) AddOneTimeKeys(ctx context.Context, keys []domain.OneTimePrekeyPublic) error {
	return c.send(ctx, http.MethodPost, "/v1/keys/otk", wire.OneTimePrekeys{Keys: wire.FromOneTimePrekeys(keys)}, nil)
}

func (c *HTTP) UpdateSignedPrekey(ctx context.Context, spk domain.SignedPrekeyPublic) error {
	return c.send(ctx, http.MethodPut, "/v1/keys/signed", wire.FromSignedPrekey(spk), nil)
}

func (c *HTTP) DeleteOneTimeKey(ctx context.Context, id domain.OneTimePrekeyID) error {
	return c.send(ctx, http.MethodDelete, "/v1/keys/otk/"+url.PathEscape(id.String()), nil, nil)
}

func (c *HTTP) PrekeyStatus(ctx context.Context) (domain.PrekeyAdvice, error) {
	var out wire.Status
	if err := c.send(ctx, http.MethodGet, "/v1/keys/status", nil, &out); err != nil {
		return domain.PrekeyAdvice{}, err
	}
	return out.ToDomain(), nil
}

// ---------- directory ----------

func (c *HTTP) ListAccounts(ctx context.Context) ([]domain.AccountID, error) {
	var out wire.Accounts
	if err := c.send(ctx, http.MethodGet, "/v1/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) PeerIdentity(ctx context.Context, peer domain.AccountID) (domain.PeerIdentity, error) {
	var out wire.Peer
	if err := c.send(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(peer.String()), nil, &out); err != nil {
		return domain.PeerIdentity{}, err
	}
	return out.ToDomain()
}

// ---------- sessions ----------

func (c *HTTP) StoreBootstrap(ctx context.Context, env domain.EncryptedEnvelope) error {
	return c.send(ctx, http.MethodPost, "/v1/sessions", wire.FromEnvelope(env), nil)
}

// FetchBootstrap returns the newest bootstrap addressed to us, or nil when
// there is none. An empty from matches any sender.
func (c *HTTP) FetchBootstrap(ctx context.Context, from domain.AccountID) (*domain.EncryptedEnvelope, error) {
	path := "/v1/sessions/bootstrap"
	if from != "" {
		path += "?from=" + url.QueryEscape(from.String())
	}
	var out wire.Envelope
	err := c.send(ctx, http.MethodGet, path, nil, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	env, err := out.ToDomain()
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *HTTP) ConsumeBootstrap(ctx context.Context, id domain.SessionID) error {
	return c.send(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id.String())+"/bootstrap", nil, nil)
}

func (c *HTTP) SessionInfo(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	var out wire.SessionInfo
	if err := c.send(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id.String()), nil, &out); err != nil {
		return domain.SessionInfo{}, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) EndSession(ctx context.Context, id domain.SessionID) error {
	return c.send(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id.String())+"/end", nil, nil)
}

// ---------- messages ----------

func (c *HTTP) SendMessage(ctx context.Context, env domain.EncryptedEnvelope) error {
	return c.send(ctx, http.MethodPost, "/v1/messages", wire.FromEnvelope(env), nil)
}

func (c *HTTP) FetchMessages(ctx context.Context, limit int) ([]domain.EncryptedEnvelope, error) {
	path := "/v1/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out wire.Messages
	if err := c.send(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

func (c *HTTP) AckMessages(ctx context.Context, count int) error {
	return c.send(ctx, http.MethodPost, "/v1/messages/ack", wire.Count{Count: count}, nil)
}

// ---------- plumbing ----------

func (c *HTTP) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *HTTP) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// statusError turns a non-2xx response back into the domain taxonomy.
func statusError(method, path string, resp *http.Response) error {
	var body wire.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	var base error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		if body.Error == domain.ErrSignature.Error() {
			base = domain.ErrSignature
		} else {
			base = domain.Invalid("request", body.Error)
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		base = domain.ErrForbidden
	case http.StatusNotFound:
		base = domain.ErrNotFound
	case http.StatusConflict:
		base = domain.ErrDuplicateOneTimeKey
	case http.StatusGone:
		base = domain.ErrStaleSession
	default:
		return fmt.Errorf("relay %s %s: %s", method, path, resp.Status)
	}
	return fmt.Errorf("relay %s %s: %w", method, path, base)
}
