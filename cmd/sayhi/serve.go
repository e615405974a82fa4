package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/app"
	"github.com/Suhaibinator/sayhi/pkg/config"
	"github.com/Suhaibinator/sayhi/pkg/metrics"
	"github.com/Suhaibinator/sayhi/pkg/router"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	configFile string
	addr       string
	framework  string
	staticDir  string
	logLevel   string
	metrics    bool
}

func newServeCmd() *cobra.Command {
	return newServeCmdWith(&serveOptions{})
}

func newServeCmdWith(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.addr, "addr", defaults.Server.Addr, "listen address")
	flags.StringVar(&opts.framework, "framework", defaults.Framework, `routing stack: "router" or "chi"`)
	flags.StringVar(&opts.staticDir, "static-dir", defaults.StaticDir, "directory served under /static (empty disables)")
	flags.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.metrics, "metrics", defaults.Metrics.Enabled, "expose Prometheus metrics")
	return cmd
}

// load reads the config file, if any, and applies the flags the user set
func (o *serveOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if flags.Changed("framework") {
		cfg.Framework = o.framework
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = o.staticDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	state := app.NewAppState()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, nil)
		if err := app.RegisterStateMetrics(collector, cfg.Metrics.Namespace, state); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	var (
		handler http.Handler
		r       *router.Router
	)
	switch cfg.Framework {
	case config.FrameworkChi:
		handler = app.NewChiHandler(cfg, state, logger, collector)
	default:
		r = app.NewRouterHandler(cfg, state, logger, collector)
		handler = r
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("framework", cfg.Framework),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if r != nil {
			if err := r.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Router shutdown incomplete", zap.Error(err))
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}
