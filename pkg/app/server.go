package app

import (
	"errors"
	"net/http"

	"github.com/Suhaibinator/sayhi/pkg/codec"
	"github.com/Suhaibinator/sayhi/pkg/common"
	"github.com/Suhaibinator/sayhi/pkg/config"
	"github.com/Suhaibinator/sayhi/pkg/metrics"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"github.com/Suhaibinator/sayhi/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const staticPrefix = "/static"

// NewRouterHandler builds the router variant. The returned Router must be
// shut down with Router.Shutdown before the http.Server stops.
func NewRouterHandler(cfg config.Config, state *AppState, logger *zap.Logger, collector *metrics.Collector) *router.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	var rateLimit *middleware.RateLimitConfig
	if cfg.RateLimit.Enabled {
		rateLimit = &middleware.RateLimitConfig{
			BucketName:        "sayhi",
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Slack:             cfg.RateLimit.Burst,
			MaxWaiting:        cfg.RateLimit.MaxWaiting,
			Strategy:          middleware.StrategyIP,
		}
	}

	r := router.NewRouter(router.RouterConfig{
		Logger:            logger,
		GlobalTimeout:     cfg.Server.RequestTimeout,
		GlobalMaxBodySize: cfg.Server.MaxBodySize,
		GlobalRateLimit:   rateLimit,
		IPConfig:          ipConfig(cfg),
		EnableTraceID:     cfg.Server.EnableTrace,
		Metrics:           collector,
		Middlewares: []common.Middleware{
			middleware.Logging(logger),
			corsMiddleware(cfg),
			middleware.SayHi(),
		},
	})

	h := NewHandlers(state, router.GetParam)

	r.RegisterRoute(router.RouteConfigBase{
		Path:    "/hello/:name",
		Methods: []string{http.MethodGet},
		Handler: h.Greet,
	})
	r.RegisterRoute(router.RouteConfigBase{
		Path:    "/count",
		Methods: []string{http.MethodGet},
		Handler: h.Count,
	})
	router.RegisterGenericRoute(r, router.RouteConfig[CreateRecord, RecordCreated]{
		Path:    "/record/create",
		Methods: []string{http.MethodPost},
		Codec:   codec.NewJSONCodec[CreateRecord, RecordCreated](),
		Handler: h.CreateRecord,
	})
	router.RegisterGenericRoute(r, router.RouteConfig[TryBody, TryBody]{
		Path:    "/try",
		Methods: []string{http.MethodPost},
		Codec:   codec.NewJSONCodec[TryBody, TryBody](),
		Handler: h.Try,
	})
	router.RegisterGenericRoute(r, router.RouteConfig[QueryParams, QueryResult]{
		Path:    "/query",
		Methods: []string{http.MethodGet},
		Codec:   codec.NewQueryCodec[QueryParams, QueryResult](),
		Handler: h.Query,
	})

	if cfg.StaticDir != "" {
		r.RegisterStatic(router.StaticConfig{
			Prefix: staticPrefix,
			Root:   http.Dir(cfg.StaticDir),
		})
	}

	if collector != nil && cfg.Metrics.Enabled {
		r.RegisterRoute(router.RouteConfigBase{
			Path:    cfg.Metrics.Path,
			Methods: []string{http.MethodGet},
			Handler: collector.Handler().ServeHTTP,
		})
	}

	return r
}

// RegisterStateMetrics exposes the /count counter. Registering the same
// state twice on one collector is not an error.
func RegisterStateMetrics(collector *metrics.Collector, namespace string, state *AppState) error {
	err := collector.RegisterCounterFunc(namespace, "count_total", "Requests served by /count.", func() float64 {
		return float64(state.Count())
	})
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// corsMiddleware returns nil when CORS is off; chains skip nil entries
func corsMiddleware(cfg config.Config) common.Middleware {
	if len(cfg.Server.CORSOrigins) == 0 {
		return nil
	}
	return middleware.CORS(cfg.Server.CORSOrigins,
		[]string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		[]string{"Content-Type", middleware.TraceIDHeader},
	)
}

func ipConfig(cfg config.Config) *middleware.IPConfig {
	if !cfg.Server.TrustProxy {
		return middleware.DefaultIPConfig()
	}
	return &middleware.IPConfig{
		Source:     middleware.IPSourceXForwardedFor,
		TrustProxy: true,
	}
}
