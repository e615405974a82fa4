package router

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// serveWithTimeout runs handler against a buffered writer in its own
// goroutine. If it finishes in time the buffered response is copied to w;
// otherwise a 408 goes through the error pathway and anything the handler
// writes afterwards is discarded.
func (r *Router) serveWithTimeout(w http.ResponseWriter, req *http.Request, handler http.HandlerFunc, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)

	tw := &timeoutWriter{h: make(http.Header)}
	done := make(chan struct{})
	panicChan := make(chan any, 1)
	// The handler may outlive a timeout; Shutdown waits for it either way
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				panicChan <- p
			}
		}()
		handler(tw, req)
		close(done)
	}()

	select {
	case p := <-panicChan:
		// Re-raised on the serving goroutine so the recovery middleware sees it
		panic(p)
	case <-done:
		tw.mu.Lock()
		defer tw.mu.Unlock()
		dst := w.Header()
		for k, vv := range tw.h {
			dst[k] = vv
		}
		if !tw.wroteHeader {
			tw.code = http.StatusOK
		}
		w.WriteHeader(tw.code)
		_, _ = w.Write(tw.wbuf.Bytes())
	case <-ctx.Done():
		tw.mu.Lock()
		tw.timedOut = true
		tw.mu.Unlock()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// The client went away; there is nobody left to answer
			r.logger.Debug("Request canceled",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			return
		}

		r.logger.Error("Request timed out",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("timeout", timeout),
			zap.String("client_ip", req.RemoteAddr),
		)
		WriteError(w, req, http.StatusRequestTimeout, "Request Timeout")
	}
}

// timeoutWriter buffers the handler's response until it is known to have
// finished before the deadline.
type timeoutWriter struct {
	h    http.Header
	wbuf bytes.Buffer

	mu          sync.Mutex
	timedOut    bool
	wroteHeader bool
	code        int
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.wbuf.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	tw.wroteHeader = true
	tw.code = code
}
