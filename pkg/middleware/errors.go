package middleware

import (
	"net/http"
)

// WriteError is the error pathway shared by the router, the rate limiter and
// the recovery middleware. It marks the request failed so enclosing SayHi
// layers leave the response unstamped, then writes message verbatim as a
// plain-text body with the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	MarkFailed(r.Context())

	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(message))
}
