package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parley/internal/domain"
	"parley/internal/wire"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateOneTimeKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStaleSession):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status. Internal errors are logged and reported
// generically.
func (s *Server) writeError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	entry := s.log.WithFields(logrus.Fields{"op": op, "status": status})
	if a, ok := c.Get(accountKey); ok {
		entry = entry.WithField("account", a)
	}
	if status == http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
		c.AbortWithStatusJSON(status, wire.Error{Error: "internal error"})
		return
	}
	entry.WithError(err).Warn("request rejected")
	c.AbortWithStatusJSON(status, wire.Error{Error: err.Error()})
}

// bind decodes the JSON body into dst and runs its validate tags.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domain.Invalid("body", err.Error())
	}
	return wire.Validate(dst)
}
