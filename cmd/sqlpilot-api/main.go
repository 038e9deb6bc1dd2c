package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlpilot/sqlpilot/internal/api"
	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/cache"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/resolve"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

func main() {
	// A .env file is optional and only used for local development.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlpilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	logger.Info("configuration loaded", slog.Any("config", cfg))

	st, err := store.New(store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		logger.Error("failed to initialize store", slog.Any("error", err))
		os.Exit(1)
	}

	index, err := schema.NewIndex(schema.DefaultTables(), st)
	if err != nil {
		logger.Error("failed to build schema index", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = index.Close() }()

	generator, err := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm gateway", slog.Any("error", err))
		os.Exit(1)
	}

	var responseCache resolve.Cache = cache.Noop{}
	if cfg.Cache.Address != "" {
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			logger.Error("failed to initialize cache", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = redisCache.Close() }()

		// An unreachable cache is not fatal, resolution just runs cold.
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("cache backend unreachable", slog.Any("error", err))
		}
		cancel()
		responseCache = redisCache
	} else {
		logger.Info("response cache disabled; set SQLPILOT_CACHE_ADDR to enable it")
	}

	resolver, err := resolve.New(resolve.Config{
		RetryBudget: cfg.Resolver.RetryBudget,
		RetrievalK:  cfg.Resolver.RetrievalK,
	}, resolve.Dependencies{
		Generator: generator,
		Retriever: index,
		Executor:  st,
		Cache:     responseCache,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to build resolver", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:   logger,
		Resolver: resolver,
		Schema:   index,
		Readiness: api.CombineReadinessChecks(
			api.CheckGatewayConfig(cfg),
			api.CheckStorePing(st),
		),
		DependencyTimeout: time.Second,
		ResolveTimeout:    cfg.Resolver.ResolveTimeout,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store_driver", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
