package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/attune/internal/adapters/catalog"
	"github.com/okian/attune/internal/adapters/http/api"
	"github.com/okian/attune/internal/adapters/http/ws"
	"github.com/okian/attune/internal/adapters/reactionlog"
	service "github.com/okian/attune/internal/app"
	"github.com/okian/attune/internal/config"
	"github.com/okian/attune/internal/supervisor"
	"github.com/okian/attune/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session engine and its HTTP and WebSocket API",
		Long: `Run the engine under a supervisor tree. Configuration layers defaults,
an optional YAML file named by ATTUNE_CONFIG and ATTUNE_* environment
variables (a local .env file is read too).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithConfig(logger.Config{Level: cfg.LogLevel, OutputPath: cfg.LogFile}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Named("main")

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	go startSystemMetricsUpdater(ctx)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddEngineService(supervisor.NewEngineService(app.svc))
	tree.AddAPIService(supervisor.NewHTTPServerService(app.server, shutdownTimeout))

	log.Info(ctx, "starting attune", logger.String("addr", cfg.Addr))
	err = tree.Serve(ctx)
	log.Info(ctx, "attune stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// application is the wired process: engine, handlers and the resources they
// own.
type application struct {
	svc     *service.Service
	handler http.Handler
	server  *http.Server
	closers []io.Closer
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}
	opts := append(service.FromConfig(cfg), service.WithLogger(logger.Named("service")))

	if cfg.CatalogDB != "" {
		store, err := catalog.Open(ctx, cfg.CatalogDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		app.closers = append(app.closers, store)
		opts = append(opts, service.WithCatalogSource(store))
	}
	if cfg.ReactionLogDir != "" {
		rl, err := reactionlog.Open(ctx, cfg.ReactionLogDir)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open reaction log: %w", err)
		}
		app.closers = append(app.closers, rl)
		opts = append(opts, service.WithReactionLog(rl))
	}

	app.svc = service.New(opts...)
	wsHandler := ws.NewHandler(app.svc,
		ws.WithSecret(cfg.JWTSecret),
		ws.WithMetricsInterval(time.Duration(cfg.MetricsBroadcastMS)*time.Millisecond),
	)
	app.handler = api.NewServer(app.svc, app.svc,
		api.WithRateLimit(cfg.RateLimitPerMinute),
		api.WithWebSocket(wsHandler),
	).Handler()
	app.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return app, nil
}

// Close releases stores in reverse order of opening.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Named("main").Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
	a.closers = nil
}
