package httpapi

import (
	"errors"
	"net/http"

	"crm-calls/internal/auth"
	"crm-calls/internal/calls"
	"crm-calls/internal/media"
	"crm-calls/internal/presence"
	"crm-calls/internal/reporting"
	"crm-calls/internal/rtc"
	"crm-calls/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, media.ErrAccessDenied), errors.Is(err, media.ErrUnavailable):
		return http.StatusServiceUnavailable, "could not access camera/microphone"
	case errors.Is(err, rtc.ErrCallInProgress):
		return http.StatusConflict, "call already in progress"
	case errors.Is(err, rtc.ErrNoActiveCall):
		return http.StatusConflict, "no active call"
	case errors.Is(err, calls.ErrInvalidTransition):
		return http.StatusConflict, "call is no longer in a state that allows this"
	case errors.Is(err, rtc.ErrNotCallee), errors.Is(err, calls.ErrNotParticipant):
		return http.StatusForbidden, "not allowed for this call"
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, presence.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, presence.ErrInvalidStatus),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, calls.ErrPersistence), errors.Is(err, presence.ErrPersistence):
		return http.StatusBadGateway, "storage unavailable"
	case errors.Is(err, rtc.ErrClosed):
		return http.StatusServiceUnavailable, "shutting down"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h Handlers) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		// surfaced by the request logger
		_ = c.Error(err)
	} else {
		logger.FromGin(c).Debug("request rejected", "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
