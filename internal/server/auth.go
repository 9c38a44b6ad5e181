package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"parley/internal/domain"
	"parley/internal/wire"
)

const accountKey = "account"

// Authenticator issues and checks bearer tokens whose subject is the account.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator returns an HS256 authenticator.
func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	return &Authenticator{secret: secret, issuer: issuer}
}

// IssueToken signs a token for account valid for ttl.
func (a *Authenticator) IssueToken(account domain.AccountID, ttl time.Duration) (string, error) {
	if !wire.ValidAccount(account.String()) {
		return "", domain.Invalid("account", "must be 1-64 of [A-Za-z0-9_-]")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   account.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns its account.
func (a *Authenticator) Parse(token string) (domain.AccountID, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	if !wire.ValidAccount(claims.Subject) {
		return "", errors.New("invalid subject")
	}
	return domain.AccountID(claims.Subject), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's account in the gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, wire.Error{Error: "invalid token format"})
			return
		}
		account, err := a.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, wire.Error{Error: "invalid token"})
			return
		}
		c.Set(accountKey, account)
		c.Next()
	}
}

func caller(c *gin.Context) domain.AccountID {
	return c.MustGet(accountKey).(domain.AccountID)
}
