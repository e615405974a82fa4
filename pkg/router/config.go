// Package router provides the httprouter-based framework behind the router variant.
// It supports middleware, sub-routers, generic codec routes, static files and graceful shutdown.
package router

import (
	"net/http"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/common"
	"github.com/Suhaibinator/sayhi/pkg/metrics"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger            *zap.Logger                 // Logger for all router operations
	GlobalTimeout     time.Duration               // Default response timeout for all routes
	GlobalMaxBodySize int64                       // Default maximum request body size in bytes
	GlobalRateLimit   *middleware.RateLimitConfig // Default pacing for all routes
	IPConfig          *middleware.IPConfig        // Configuration for client IP extraction
	EnableTraceID     bool                        // Assign a trace ID to every request and log it
	Metrics           *metrics.Collector          // Per-route Prometheus instrumentation (optional)
	SubRouters        []SubRouterConfig           // Sub-routers with their own configurations
	Middlewares       []common.Middleware         // Global middlewares applied to all routes
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
type SubRouterConfig struct {
	PathPrefix          string                      // Common path prefix for all routes in this sub-router
	TimeoutOverride     time.Duration               // Override global timeout for all routes in this sub-router
	MaxBodySizeOverride int64                       // Override global max body size for all routes in this sub-router
	RateLimitOverride   *middleware.RateLimitConfig // Override global pacing for all routes in this sub-router
	Routes              []RouteConfigBase           // Routes in this sub-router
	Middlewares         []common.Middleware         // Middlewares applied to all routes in this sub-router
}

// RouteConfigBase defines the configuration for a plain http.HandlerFunc route.
type RouteConfigBase struct {
	Path        string                      // Route path (prefixed with the sub-router path prefix if applicable)
	Methods     []string                    // HTTP methods this route handles
	Timeout     time.Duration               // Override timeout for this specific route
	MaxBodySize int64                       // Override max body size for this specific route
	RateLimit   *middleware.RateLimitConfig // Pacing for this specific route
	Handler     http.HandlerFunc            // Standard HTTP handler function
	Middlewares []common.Middleware         // Middlewares applied to this specific route
}

// RouteConfig defines a route with generic request and response types.
// The Codec decodes the request into T and encodes the handler's U.
type RouteConfig[T any, U any] struct {
	Path        string
	Methods     []string
	Timeout     time.Duration
	MaxBodySize int64
	RateLimit   *middleware.RateLimitConfig
	Codec       Codec[T, U]
	Handler     GenericHandler[T, U]
	Middlewares []common.Middleware
}

// StaticConfig serves files from Root under Prefix.
type StaticConfig struct {
	Prefix      string          // URL prefix without a trailing slash, e.g. "/static"
	Root        http.FileSystem // File system to serve
	Listing     bool            // Allow directory listings for directories without index.html
	Middlewares []common.Middleware
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// GenericHandler handles a decoded request value and returns the value to encode.
// A non-nil error sends the response through the error pathway instead;
// return an *HTTPError to control the status code and body.
type GenericHandler[T any, U any] func(r *http.Request, data T) (U, error)

// Codec defines an interface for decoding request data and encoding response data.
// The codec package provides JSON and query-string implementations.
type Codec[T any, U any] interface {
	// Decode extracts and deserializes data from an HTTP request into a value of type T.
	Decode(r *http.Request) (T, error)

	// Encode serializes a value of type U and writes it to the HTTP response,
	// setting Content-Type.
	Encode(w http.ResponseWriter, resp U) error
}
