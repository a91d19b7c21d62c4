// Package main is the entry point for the Bodleian Archive server.
// Bodleian Archive is a self-hosted document archive with capacity-tracked
// storage locations, role-based access control and a full activity log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/bodleian-archive/internal/auth"
	"github.com/prn-tf/bodleian-archive/internal/cache/memory"
	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/extract"
	"github.com/prn-tf/bodleian-archive/internal/handler"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/metrics"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/repository/postgres"
	"github.com/prn-tf/bodleian-archive/internal/repository/sqlite"
	"github.com/prn-tf/bodleian-archive/internal/service"
	"github.com/prn-tf/bodleian-archive/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Bodleian Archive Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Primary database.
	db, err := sqlite.NewDB(ctx, sqliteConfig(cfg.Database), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	docRepo := sqlite.NewDocumentRepository(db)
	typeRepo := sqlite.NewDocumentTypeRepository(db)
	locRepo := sqlite.NewLocationRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	roleRepo := sqlite.NewRoleRepository(db)
	sessionRepo := sqlite.NewSessionRepository(db)
	auditRepo := sqlite.NewAuditRepository(db)

	// Optional PostgreSQL audit mirror.
	var mirrorRepo repository.AuditRepository
	if cfg.AuditMirror.Enabled {
		pgDB, err := postgres.NewDB(ctx, cfg.AuditMirror.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect audit mirror: %w", err)
		}
		defer pgDB.Close()

		if err := postgres.EnsureSchema(ctx, pgDB); err != nil {
			return fmt.Errorf("prepare audit mirror schema: %w", err)
		}
		mirrorRepo = postgres.NewAuditRepository(pgDB)
		logger.Info().Str("host", cfg.AuditMirror.Postgres.Host).Msg("audit mirror enabled")
	}

	// Distributed locks. Redis coordinates capacity updates across
	// instances; the in-memory locker covers single-instance setups.
	var locker lock.Locker
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		defer client.Close()

		redisLocker, err := lock.NewRedisLocker(client)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		locker = redisLocker
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("redis locks enabled")
	} else {
		locker = lock.NewMemoryLocker()
	}

	permCache := memory.NewCache()
	defer permCache.Stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	backend, err := newBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initialize storage backend: %w", err)
	}

	var extractor *extract.Client
	if cfg.Extraction.Enabled {
		extractor = extract.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout, logger)
		logger.Info().Str("base_url", cfg.Extraction.BaseURL).Msg("metadata extraction enabled")
	}

	// Services.
	auditSvc := service.NewAuditService(auditRepo, mirrorRepo, cfg.Audit, m, logger)
	defer auditSvc.Close()

	capacitySvc := service.NewCapacityService(docRepo, locRepo, locker, cfg.Capacity, m, logger)
	permissionSvc := service.NewPermissionService(roleRepo, permCache, cfg.Auth.PermissionCacheTTL, logger)
	documentSvc := service.NewDocumentService(docRepo, typeRepo, locRepo, backend, capacitySvc, auditSvc, m, logger)
	userSvc := service.NewUserService(userRepo, roleRepo, docRepo, auditSvc, cfg.Auth.BcryptCost, logger)
	locationSvc := service.NewLocationService(locRepo, docRepo, auditSvc, logger)
	typeSvc := service.NewDocumentTypeService(typeRepo, docRepo, auditSvc, logger)
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, auditSvc, locker, cfg.Auth, logger)

	go sessionSvc.RunSweeper(ctx, cfg.Auth.SessionSweepInterval)

	// HTTP surface.
	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:     handler.NewAuthHandler(sessionSvc, userSvc, logger),
		DocumentHandler: handler.NewDocumentHandler(documentSvc, auditSvc, extractor, logger),
		CatalogHandler:  handler.NewCatalogHandler(locationSvc, typeSvc, capacitySvc, logger),
		AdminHandler:    handler.NewAdminHandler(userSvc, permissionSvc, auditSvc, capacitySvc, logger),
		AuthMiddleware:  auth.Middleware(sessionSvc, permissionSvc, auth.DefaultConfig()),
		Metrics:         m,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      http.MaxBytesHandler(router.Handler(), cfg.Server.MaxBodySize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}

func newBackend(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Backend(ctx, cfg.S3, logger)
	case "", "filesystem":
		return storage.NewFilesystemBackend(cfg.DataDir, cfg.TempDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	}

	var out = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sc.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	if cfg.MaxOpenConns > 0 {
		sc.MaxOpenConns = cfg.MaxOpenConns
	}
	return sc
}
