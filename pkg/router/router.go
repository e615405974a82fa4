package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/common"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Router is the main router struct that implements http.Handler.
// It provides routing, middleware support, graceful shutdown, and other features.
type Router struct {
	config      RouterConfig
	router      *httprouter.Router
	logger      *zap.Logger
	middlewares []common.Middleware
	rateLimiter *middleware.RateLimiter
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

// NewRouter creates a new Router with the given configuration.
// It initializes the underlying httprouter, sets up logging, and registers routes from sub-routers.
func NewRouter(config RouterConfig) *Router {
	hr := httprouter.New()

	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	r := &Router{
		config:      config,
		router:      hr,
		logger:      logger,
		rateLimiter: middleware.NewRateLimiter(),
	}

	// Client IP and trace ID come first so every other middleware can log them
	r.middlewares = append(r.middlewares, middleware.ClientIPMiddleware(config.IPConfig))
	if config.EnableTraceID {
		r.middlewares = append(r.middlewares, middleware.Trace())
	}
	r.middlewares = append(r.middlewares, config.Middlewares...)

	hr.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "Not Found")
	})
	hr.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// httprouter answers OPTIONS before any route matches; run those through
	// the global middlewares so CORS preflights see them
	hr.GlobalOPTIONS = common.NewMiddlewareChain(middleware.Recovery(logger)).
		Append(r.middlewares...).
		ThenFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

	for _, sr := range config.SubRouters {
		r.registerSubRouter(sr)
	}

	return r
}

// Logger returns the router's logger
func (r *Router) Logger() *zap.Logger {
	return r.logger
}

// registerSubRouter registers all routes in a sub-router.
func (r *Router) registerSubRouter(sr SubRouterConfig) {
	for _, route := range sr.Routes {
		fullPath := sr.PathPrefix + route.Path

		timeout := r.getEffectiveTimeout(route.Timeout, sr.TimeoutOverride)
		maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, sr.MaxBodySizeOverride)
		rateLimit := r.getEffectiveRateLimit(route.RateLimit, sr.RateLimitOverride)

		mws := common.NewMiddlewareChain(sr.Middlewares...).Append(route.Middlewares...)
		handler := r.wrapHandler(fullPath, route.Handler, timeout, maxBodySize, rateLimit, mws)
		r.handle(route.Methods, fullPath, handler)
	}
}

// RegisterRoute registers a route with the router.
// For generic routes with type parameters, use RegisterGenericRoute instead.
func (r *Router) RegisterRoute(route RouteConfigBase) {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	rateLimit := r.getEffectiveRateLimit(route.RateLimit, nil)

	handler := r.wrapHandler(route.Path, route.Handler, timeout, maxBodySize, rateLimit, route.Middlewares)
	r.handle(route.Methods, route.Path, handler)
}

// RegisterGenericRoute registers a route with generic request and response types.
// This is a standalone function rather than a method because Go methods cannot have type parameters.
func RegisterGenericRoute[T any, U any](r *Router, route RouteConfig[T, U]) {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	rateLimit := r.getEffectiveRateLimit(route.RateLimit, nil)

	handler := NewGenericHandler(route.Codec, route.Handler, r.logger)
	wrapped := r.wrapHandler(route.Path, handler.ServeHTTP, timeout, maxBodySize, rateLimit, route.Middlewares)
	r.handle(route.Methods, route.Path, wrapped)
}

// RegisterStatic serves files under config.Prefix for GET and HEAD.
func (r *Router) RegisterStatic(config StaticConfig) {
	path := config.Prefix + "/*filepath"
	handler := r.wrapHandler(path, StaticHandler(config.Root, config.Listing).ServeHTTP,
		r.config.GlobalTimeout, 0, r.config.GlobalRateLimit, config.Middlewares)
	r.handle([]string{http.MethodGet, http.MethodHead}, path, handler)
}

func (r *Router) handle(methods []string, path string, handler http.Handler) {
	for _, method := range methods {
		r.router.Handler(method, path, handler)
		r.logger.Debug("Route registered",
			zap.String("method", method),
			zap.String("path", path),
		)
	}
}

// wrapHandler wraps a handler with all the necessary middleware.
// The resulting order, outermost first, is: recovery, metrics, global
// middlewares, route middlewares, pacing, then the core that applies the
// shutdown gate, body limit and timeout.
func (r *Router) wrapHandler(route string, handler http.HandlerFunc, timeout time.Duration, maxBodySize int64, rateLimit *middleware.RateLimitConfig, middlewares []Middleware) http.Handler {
	h := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// The flag check and wg.Add share the lock so Shutdown never waits on a stale counter
		r.shutdownMu.RLock()
		if r.shutdown {
			r.shutdownMu.RUnlock()
			middleware.WriteError(w, req, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
		r.wg.Add(1)
		r.shutdownMu.RUnlock()
		defer r.wg.Done()

		if maxBodySize > 0 && req.Body != nil {
			req.Body = http.MaxBytesReader(w, req.Body, maxBodySize)
		}

		if timeout > 0 {
			r.serveWithTimeout(w, req, handler, timeout)
			return
		}
		handler(w, req)
	}))

	chain := common.NewMiddlewareChain(middleware.Recovery(r.logger))
	if r.config.Metrics != nil {
		chain = chain.Append(r.config.Metrics.Middleware(route))
	}
	chain = chain.Append(r.middlewares...)
	chain = chain.Append(middlewares...)
	if rateLimit != nil {
		chain = chain.Append(middleware.RateLimit(rateLimit, r.rateLimiter, r.logger))
	}

	return chain.Then(h)
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests and waits for existing requests to complete,
// including handlers still running after their request timed out.
// If the context is canceled before all requests complete, it returns the context's error.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetParams retrieves the httprouter.Params from the request context.
func GetParams(r *http.Request) httprouter.Params {
	return httprouter.ParamsFromContext(r.Context())
}

// GetParam retrieves a specific route parameter from the request context.
func GetParam(r *http.Request, name string) string {
	return GetParams(r).ByName(name)
}

// getEffectiveTimeout considers route, sub-router and global settings in that order of precedence.
func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize considers route, sub-router and global settings in that order of precedence.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

// getEffectiveRateLimit considers route, sub-router and global settings in that order of precedence.
func (r *Router) getEffectiveRateLimit(routeRateLimit, subRouterRateLimit *middleware.RateLimitConfig) *middleware.RateLimitConfig {
	if routeRateLimit != nil {
		return routeRateLimit
	}
	if subRouterRateLimit != nil {
		return subRouterRateLimit
	}
	return r.config.GlobalRateLimit
}
