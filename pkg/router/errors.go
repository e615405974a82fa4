package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"go.uber.org/zap"
)

// HTTPError represents an HTTP error with a status code and message.
// When returned from a GenericHandler, the status code and message are sent
// to the client verbatim.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message sent as the response body
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// ErrorBadRequest is shorthand for a 400 HTTPError
func ErrorBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

// handleError logs err and sends it through the error pathway.
// An *HTTPError anywhere in err's chain overrides statusCode and message.
func handleError(logger *zap.Logger, w http.ResponseWriter, req *http.Request, err error, statusCode int, message string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		statusCode = httpErr.StatusCode
		message = httpErr.Message
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", statusCode),
	}
	if traceID := middleware.GetTraceID(req); traceID != "" {
		fields = append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
	}

	if statusCode >= 500 {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Request rejected", fields...)
	}

	WriteError(w, req, statusCode, message)
}

// WriteError sends a plain-text error response through the error pathway.
// Responses written this way are never stamped by middleware.SayHi.
func WriteError(w http.ResponseWriter, req *http.Request, statusCode int, message string) {
	middleware.WriteError(w, req, statusCode, message)
}
