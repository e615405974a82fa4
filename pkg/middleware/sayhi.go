package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Header stamped by SayHi on the way in and on the way out.
const (
	SayHiHeader = "middleware"
	SayHiBefore = "before"
	SayHiAfter  = "after"
)

// sayHiKey is the context key for the innermost SayHi layer of a request
type sayHiKey struct{}

// sayHiState is created per request per SayHi layer. parent links to the
// enclosing layer so a failure reaches every layer of a stacked chain.
type sayHiState struct {
	parent *sayHiState
	failed atomic.Bool
}

// SayHi stamps "middleware: before" on the request before forwarding it and
// "middleware: after" on the response produced by the inner handler. Both
// writes overwrite any previous value.
//
// Response headers are committed on the first WriteHeader or Write, so the
// after stamp is applied at that moment, or once the inner handler returns if
// it wrote nothing. Responses written through the error pathway (see
// MarkFailed) are left unstamped.
func SayHi() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set(SayHiHeader, SayHiBefore)

			state := &sayHiState{}
			if parent, ok := r.Context().Value(sayHiKey{}).(*sayHiState); ok {
				state.parent = parent
			}

			sw := &sayHiResponseWriter{ResponseWriter: w, state: state}
			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), sayHiKey{}, state)))

			if !sw.wroteHeader {
				sw.stamp()
			}
		})
	}
}

// MarkFailed records that the response for this request is being produced by
// an error pathway instead of a handler's normal result. Every SayHi layer
// wrapping the request skips its after stamp. It is a no-op when no SayHi
// layer is present.
func MarkFailed(ctx context.Context) {
	state, _ := ctx.Value(sayHiKey{}).(*sayHiState)
	for ; state != nil; state = state.parent {
		state.failed.Store(true)
	}
}

// Failed reports whether MarkFailed was called for the request context.
func Failed(ctx context.Context) bool {
	state, ok := ctx.Value(sayHiKey{}).(*sayHiState)
	return ok && state.failed.Load()
}

// sayHiResponseWriter applies the after stamp right before headers are committed
type sayHiResponseWriter struct {
	http.ResponseWriter
	state       *sayHiState
	wroteHeader bool
}

func (rw *sayHiResponseWriter) stamp() {
	if !rw.state.failed.Load() {
		rw.Header().Set(SayHiHeader, SayHiAfter)
	}
}

// WriteHeader stamps the response and forwards the status code
func (rw *sayHiResponseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.stamp()
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write commits an implicit 200 if the handler did not call WriteHeader
func (rw *sayHiResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher
func (rw *sayHiResponseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController
func (rw *sayHiResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
