package handler

import (
	"errors"
	"net/http"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Kind         domain.ErrorKind   `json:"kind"`
	ErrorMessage string             `json:"error_message"`
	Code         string             `json:"code,omitempty"`
	Details      []domain.FieldError `json:"details,omitempty"`
}

// writeError maps the §7 error taxonomy onto HTTP status codes and the
// common JSON error body. ErrInvalidCredentials answers 401, and a
// *domain.PluginError answers 500 with kind PluginError and its message;
// anything else is reported as Internal without leaking its message.
func writeError(c *gin.Context, logger interface {
	Error(msg string, args ...any)
}, op string, err error) {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		status := statusForKind(apiErr.Kind)
		if status >= http.StatusInternalServerError {
			logger.Error(op, "error", err)
		}
		c.JSON(status, errorResponse{
			Kind:         apiErr.Kind,
			ErrorMessage: apiErr.Message,
			Code:         apiErr.Code,
			Details:      apiErr.Details,
		})
		return
	}

	if errors.Is(err, domain.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, errorResponse{
			Kind:         domain.KindInvalidCredentials,
			ErrorMessage: "invalid credentials",
		})
		return
	}

	var pluginErr *domain.PluginError
	if errors.As(err, &pluginErr) {
		logger.Error(op, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			Kind:         domain.KindPluginError,
			ErrorMessage: pluginErr.Error(),
		})
		return
	}

	logger.Error(op, "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{
		Kind:         domain.KindInternal,
		ErrorMessage: "internal server error",
	})
}

// statusForKind follows §7 literally: only these three kinds get a
// distinct status, every other kind (including UserAlreadyExist,
// which the store reports for a duplicate username) is 500.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInvalidCredentials:
		return http.StatusUnauthorized
	case domain.KindResourceNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
