package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"palletroute/internal/api"
	"palletroute/internal/buildinfo"
	"palletroute/internal/config"
	"palletroute/internal/engines"
	"palletroute/internal/heuristic"
	"palletroute/internal/logging"
	"palletroute/internal/metrics"
	"palletroute/internal/store"
	"palletroute/internal/telemetry"
	"palletroute/internal/webhooks"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, buildinfo.Version, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}
	metrics.RegisterDefault()

	st, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var broker api.EventBroker = api.NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := api.NewRedisBroker(cfg.Redis.URL, cfg.Redis.Channel, logger.Named("broker"))
		if err != nil {
			logger.Warn("redis broker unavailable, using in-memory broker", zap.Error(err))
		} else {
			defer func() { _ = rb.Close() }()
			broker = rb
		}
	}

	set, err := engines.Build(cfg.Solvers, logger)
	if err != nil {
		return err
	}
	hcfg, err := cfg.Heuristic.Heuristic()
	if err != nil {
		return err
	}
	h, err := heuristic.New(hcfg, set.Packing, set.Routing,
		heuristic.WithLogger(logger.Named("heuristic")),
		heuristic.WithObserver(metrics.Recorder{}),
		heuristic.WithObserver(api.BrokerObserver(broker)),
		heuristic.WithObserver(webhooks.NewPublisher(st, cfg.Webhooks.Subscriptions, logger.Named("webhooks"))),
	)
	if err != nil {
		return err
	}

	srvDeps := api.NewServer(cfg, st, broker, h, logger.Named("api"))
	srvDeps.RoutingMetrics = set.RoutingMetrics

	worker := webhooks.NewWorker(st, cfg.Webhooks.MaxAttempts, logger.Named("webhooks"))
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           api.LogMiddleware(logger, srvDeps.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("API listening", zap.String("addr", srv.Addr), zap.String("version", buildinfo.Version))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := srvDeps.Wait(sctx); err != nil {
		logger.Warn("background runs still active at shutdown", zap.Error(err))
	}
	return nil
}

// openStore uses Postgres when a database URL is configured and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Database, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.URL == "" {
		logger.Info("using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("using postgres store")
	return pg, func() { _ = pg.Close() }, nil
}
