package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

// Machine-readable error codes.
const (
	CodeRideTaken         = "RIDE_TAKEN"
	CodeStaleVersion      = "STALE_VERSION"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodePrerequisite      = "PREREQUISITE_FAILED"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeDuplicate         = "DUPLICATE"
	CodeInternal          = "INTERNAL"
)

// rideUnavailableMessage is what a driver losing the accept race sees.
const rideUnavailableMessage = "ride no longer available"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unexpected errors are attached to the gin context for reporting and not echoed.
func respondError(c *gin.Context, err error) {
	status, code := mapError(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal server error"
	case http.StatusConflict:
		if code == CodeRideTaken || code == CodeStaleVersion {
			msg = rideUnavailableMessage
		}
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

// badRequest sends a 400 for malformed input caught in the handler.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeInvalidInput})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapError maps service/repository errors to HTTP status codes and error codes.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, CodeNotFound

	case service.IsValidationError(err):
		return http.StatusBadRequest, CodeInvalidInput

	case errors.Is(err, service.ErrStaleVersion):
		return http.StatusConflict, CodeStaleVersion
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, CodeRideTaken
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, CodeDuplicate

	case errors.Is(err, service.ErrPrerequisite):
		return http.StatusPreconditionFailed, CodePrerequisite

	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
