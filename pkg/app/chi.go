package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/codec"
	"github.com/Suhaibinator/sayhi/pkg/config"
	"github.com/Suhaibinator/sayhi/pkg/metrics"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"github.com/Suhaibinator/sayhi/pkg/router"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// NewChiHandler builds the chi variant. It serves the same endpoints as
// NewRouterHandler; generic routes share router.NewGenericHandler so both
// variants answer errors identically.
func NewChiHandler(cfg config.Config, state *AppState, logger *zap.Logger, collector *metrics.Collector) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	if cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Recovery(logger))
	if cfg.Server.EnableTrace {
		r.Use(middleware.Trace())
	}
	r.Use(middleware.Logging(logger))
	if cors := corsMiddleware(cfg); cors != nil {
		r.Use(cors)
	}
	if cfg.RateLimit.Enabled {
		r.Use(httprate.Limit(
			cfg.RateLimit.RequestsPerSecond+cfg.RateLimit.Burst,
			time.Second,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Retry-After", "1")
				middleware.WriteError(w, req, http.StatusTooManyRequests, "Too Many Requests")
			}),
		))
	}
	if cfg.Server.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.Server.MaxBodySize))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Per-route stack, outermost first: metrics, SayHi, timeout
	handle := func(method, pattern string, handler http.Handler) {
		var mws []func(http.Handler) http.Handler
		if collector != nil {
			mws = append(mws, collector.Middleware(pattern))
		}
		mws = append(mws, middleware.SayHi())
		if cfg.Server.RequestTimeout > 0 {
			mws = append(mws, chimw.Timeout(cfg.Server.RequestTimeout), failOnDeadline)
		}
		r.With(mws...).Method(method, pattern, handler)
	}

	h := NewHandlers(state, chi.URLParam)

	handle(http.MethodGet, "/hello/{name}", http.HandlerFunc(h.Greet))
	handle(http.MethodGet, "/count", http.HandlerFunc(h.Count))
	handle(http.MethodPost, "/record/create",
		router.NewGenericHandler[CreateRecord, RecordCreated](codec.NewJSONCodec[CreateRecord, RecordCreated](), h.CreateRecord, logger))
	handle(http.MethodPost, "/try",
		router.NewGenericHandler[TryBody, TryBody](codec.NewJSONCodec[TryBody, TryBody](), h.Try, logger))
	handle(http.MethodGet, "/query",
		router.NewGenericHandler[QueryParams, QueryResult](codec.NewQueryCodec[QueryParams, QueryResult](), h.Query, logger))

	if cfg.StaticDir != "" {
		static := http.StripPrefix(staticPrefix, router.StaticHandler(http.Dir(cfg.StaticDir), false))
		handle(http.MethodGet, staticPrefix+"/*", static)
		handle(http.MethodHead, staticPrefix+"/*", static)
	}

	if collector != nil && cfg.Metrics.Enabled {
		handle(http.MethodGet, cfg.Metrics.Path, collector.Handler())
	}

	return r
}

// failOnDeadline sends responses of requests that outlived chimw.Timeout
// through the error pathway, so its 504 is left unstamped.
func failOnDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		next.ServeHTTP(w, req)
		if errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			middleware.MarkFailed(req.Context())
		}
	})
}
