package web

// Errors are logged with full technical detail server-side and returned to
// clients as the user message from core.MapError, with a support code the
// user can quote back.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/ledger/internal/core"
	"github.com/JonMunkholm/ledger/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Row     int    `json:"row,omitempty"`
}

// respondError logs err and writes its mapped user message with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var rowErr *core.InvalidRowError
	if errors.As(err, &rowErr) {
		resp.Row = rowErr.Row
	}
	// Driver errors can carry SQL and connection details.
	if statusCode >= http.StatusInternalServerError {
		resp.Error = msg.Message
	}

	writeJSON(w, statusCode, resp)
}

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	var (
		missing  *core.MissingColumnError
		rowErr   *core.InvalidRowError
		storeErr *core.StorageError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &rowErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrDuplicateImport):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError
	}

	switch core.MapError(err).Code {
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE002":
		return http.StatusUnprocessableEntity
	case "FILE004":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
