package delivery

import (
	"errors"
	"net/http"

	authusecase "postmark-backend/internal/auth/usecase"
	"postmark-backend/internal/mailbox/domain"

	"github.com/gin-gonic/gin"
)

// errorKind maps a classified error onto an HTTP status and a stable code for clients.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSyncRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case errors.Is(err, authusecase.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusUnauthorized, "missing_credentials"
	case errors.Is(err, domain.ErrInvalidGrant):
		return http.StatusUnauthorized, "invalid_grant"
	case errors.Is(err, domain.ErrInsufficientScope):
		return http.StatusForbidden, "insufficient_scope"
	case errors.Is(err, domain.ErrConnectionNotFound):
		return http.StatusNotFound, "connection_not_found"
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrRemoteMessageNotFound):
		return http.StatusNotFound, "message_not_found"
	case errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, domain.ErrConnectionExists):
		return http.StatusConflict, "connection_exists"
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusUnprocessableEntity, "unsupported_provider"
	case errors.Is(err, domain.ErrSyncFailed):
		return http.StatusInternalServerError, "sync_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func respondError(c *gin.Context, err error) {
	status, code := errorKind(err)
	body := gin.H{"error": err.Error(), "code": code}
	if guidance := domain.Guidance(err); guidance != "" {
		body["guidance"] = guidance
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, body)
}
