package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/ironpulse/internal/api"
	"github.com/eldtechnologies/ironpulse/internal/config"
	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/handlers"
	"github.com/eldtechnologies/ironpulse/internal/relay"
	"github.com/eldtechnologies/ironpulse/internal/secrets"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the relational store
	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store connection failed")
	}
	defer db.Close()
	logger.Info().Str("driver", db.Dialect()).Msg("connected to store")

	// Initialize Redis store
	var redisStore *store.RedisStore
	var journal relay.Journal
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		journal = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, partial operations are only logged")
	}

	hasher, err := crypto.NewHasherFromHex(cfg.IntegrityKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid INTEGRITY_KEY")
	}
	if cfg.IntegrityKey == "" {
		logger.Warn().Msg("INTEGRITY_KEY not set, using unkeyed integrity hash")
	}

	// Relay engine
	registry := relay.NewRegistry(db, journal, logger)
	if err := registry.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("channel catalog init failed")
	}
	guard := relay.NewGuard(db, logger)
	messages := relay.NewMessages(db)
	dispatcher := relay.NewDispatcher(registry, guard, messages, hasher, logger, relay.DispatcherOptions{
		AckRequiresPermission: cfg.AckRequiresPermission,
	})
	compactor := relay.NewCompactor(registry, guard, cfg.CompactInterval, logger)

	var limiter *relay.ConnLimiter
	if redisStore != nil && cfg.ConnectionRateLimit > 0 {
		limiter = relay.NewConnLimiter(redisStore.Client(), logger, relay.ConnLimiterConfig{
			Limit:     cfg.ConnectionRateLimit,
			Whitelist: cfg.ConnectionRateWhitelist,
		})
	}

	server := relay.NewServer(dispatcher, hasher, limiter, logger, relay.ServerOptions{
		MaxConnections:  int64(cfg.MaxConnections),
		MaxRequestBytes: int64(cfg.MaxRequestBytes),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		StoreTimeout:    cfg.StoreTimeout,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("relay listen failed")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gctx, ln)
	})

	g.Go(func() error {
		return compactor.Run(gctx)
	})

	if cfg.AdminAddr != "" {
		h := handlers.NewHandler(db, redisStore, registry, messages)
		srv := &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      api.NewRouter(logger, h, cfg.AdminTokenHash),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		g.Go(func() error {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("admin server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			// Graceful shutdown with 30 second timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("env", cfg.Env).
		Msg("starting IronPulse relay")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}

	logger.Info().Msg("server stopped")
}

// openStore opens the configured store. For Postgres without DATABASE_URL
// the connection string is built from the one-shot database secret.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return store.NewSQLiteStore(ctx, cfg.SQLitePath, cfg.DBMaxConns)
	}

	url := cfg.DatabaseURL
	if url == "" {
		if cfg.SecretsDir == "" {
			return nil, errors.New("postgres requires DATABASE_URL or SECRETS_DIR")
		}
		blob, err := secrets.NewFileStore(cfg.SecretsDir).Fetch("ironpulse", "database")
		if err != nil {
			return nil, err
		}
		url, err = secrets.DatabaseURLFromBlob(blob)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("database credentials read from secret store")
	}
	return store.NewPostgresStore(ctx, url, int32(cfg.DBMaxConns))
}
