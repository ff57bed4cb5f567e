// Command cp-server starts the ConnectPro HTTP API and its gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/config"
	"github.com/and161185/connectpro/internal/enrich"
	"github.com/and161185/connectpro/internal/lastcontact"
	"github.com/and161185/connectpro/internal/limiter"
	"github.com/and161185/connectpro/internal/migrate"
	"github.com/and161185/connectpro/internal/repository"
	"github.com/and161185/connectpro/internal/repository/memory"
	"github.com/and161185/connectpro/internal/repository/postgres"
	grpcserver "github.com/and161185/connectpro/internal/server/grpc"
	httpserver "github.com/and161185/connectpro/internal/server/http"
	"github.com/and161185/connectpro/internal/service"
	"github.com/and161185/connectpro/internal/taxonomy"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 10 * time.Second

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = os.Stderr.WriteString("load .env: " + err.Error() + "\n")
		os.Exit(2)
	}
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store repository.Store
		lim   limiter.Limiter = limiter.Nop{}
		db    *postgres.DB
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		store = memory.New()
	default:
		if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err = postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()
		store = postgres.NewStore(db)
		lim = limiter.NewPG(db.Pool, cfg.LimitWindow, cfg.LimitMax, cfg.LimitBlock)
	}

	// Taxonomy
	table := taxonomy.Standard()
	if cfg.TaxonomyFile != "" {
		f, err := os.Open(cfg.TaxonomyFile)
		if err != nil {
			logger.Fatal("open taxonomy", zap.Error(err))
		}
		table, err = taxonomy.Load(f)
		_ = f.Close()
		if err != nil {
			logger.Fatal("load taxonomy", zap.Error(err))
		}
	}

	// Services
	tags := service.NewTagService(store.Tags(), table, logger)
	n, err := tags.Seed(ctx)
	if err != nil {
		logger.Fatal("seed taxonomy", zap.Error(err))
	}
	logger.Info("taxonomy seeded", zap.Int("inserted", n))

	authSvc := service.NewAuthService(store.Users(), service.AuthConfig{
		SignKey:      []byte(cfg.JWTKey),
		AccessTTL:    cfg.AccessTTL,
		MagicLinkTTL: cfg.MagicLinkTTL,
		FrontendURL:  cfg.FrontendURL,
	}, lim)
	connSvc := service.NewConnectionService(store, tags)
	logSvc := service.NewLogService(store, tags, lastcontact.New(logger))

	pool := enrich.NewPool(enrich.NewHTTPScraper(cfg.EnrichTimeout), enrich.Options{
		Workers:   cfg.EnrichWorkers,
		QueueSize: cfg.EnrichQueue,
		Timeout:   cfg.EnrichTimeout,
		Retention: cfg.EnrichRetention,
	}, logger)

	deps := httpserver.Deps{
		Auth:        authSvc,
		Connections: connSvc,
		Logs:        logSvc,
		Tags:        tags,
		Enrich:      pool,
	}
	// a typed nil would make the interface non-nil
	var pinger grpcserver.Pinger
	if db != nil {
		deps.DB = db
		pinger = db
	}

	api := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(deps, logger).Handler(httpserver.Options{CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Addr))
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var hs *grpcserver.Health
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("listen grpc health", zap.Error(err))
		}
		hs = grpcserver.NewHealth(pinger, grpcserver.Options{Dev: cfg.Dev}, logger)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := hs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := api.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if hs != nil {
		hs.Stop(5 * time.Second)
	}
	pool.Stop()

	logger.Info("shutdown complete")
	if exit != 0 {
		os.Exit(exit)
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
