// Package response renders the JSON envelope shared by every endpoint:
// {success: true, data, meta?} on success and
// {success: false, error: {code, message}} on failure.
package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/apperr"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody carries a stable code and a human readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes a paginated result.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// OK writes a success envelope.
func OK(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Data: data})
}

// Paginated writes a success envelope with pagination metadata.
func Paginated(c *fiber.Ctx, data any, meta Meta) error {
	return c.Status(http.StatusOK).JSON(Envelope{Success: true, Data: data, Meta: &meta})
}

var kindMapping = []struct {
	kind   error
	status int
	code   string
}{
	{apperr.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{apperr.ErrInsufficientBalance, http.StatusBadRequest, "INSUFFICIENT_BALANCE"},
	{apperr.ErrWalletNotActive, http.StatusForbidden, "WALLET_NOT_ACTIVE"},
	{apperr.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{apperr.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{apperr.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{apperr.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{apperr.ErrDuplicateRequest, http.StatusConflict, "DUPLICATE_REQUEST"},
	{apperr.ErrConflict, http.StatusConflict, "CONFLICT"},
	{apperr.ErrStorage, http.StatusInternalServerError, "STORAGE_FAILURE"},
}

// Describe maps an error to its HTTP status and envelope body. Messages of
// server-side failures are not exposed.
func Describe(err error) (int, ErrorBody) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, ErrorBody{Code: statusCode(fe.Code), Message: fe.Message}
	}

	for _, m := range kindMapping {
		if !errors.Is(err, m.kind) {
			continue
		}
		body := ErrorBody{Code: m.code, Message: err.Error()}
		var coded *apperr.Error
		if errors.As(err, &coded) {
			body.Code = coded.Code()
			body.Message = coded.Message()
		}
		if m.status >= http.StatusInternalServerError {
			body.Message = "storage failure"
		}
		return m.status, body
	}

	return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_SERVER_ERROR", Message: "internal server error"}
}

// ErrorHandler is installed as the Fiber error handler so handlers can simply
// return domain errors.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := Describe(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "method", c.Method(), "error", err)
		}
		return c.Status(status).JSON(Envelope{Success: false, Error: &body})
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	}
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
