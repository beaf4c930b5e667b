package http

import (
	"errors"
	"net/http"

	"medprep-study-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case domain.IsConsistency(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNothingToResume), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsCollaborator(err):
		return http.StatusBadGateway
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) errorPayload {
	p := errorPayload{Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		p.Field = verr.Field
	}
	return p
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody(err)})
}
