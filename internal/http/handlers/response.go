// Package handlers implements the public HTTP API: request DTOs, parameter
// validation, and translation between service errors and wire responses.
//
// Every failure goes through fail() so clients always see the same envelope:
//
//	HTTP/1.1 423 Locked
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "account_locked",
//	  "message": "account temporarily locked"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by all endpoints. Code is a
// stable machine-readable string (constants in errors.go); Message is safe
// to surface to end users; RequestID ties the response to server logs.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts with the standard envelope. 5xx responses are additionally
// logged with request context since those are the ones operators chase.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail() to the router for NoRoute and auth failures so every
// response path shares the envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
