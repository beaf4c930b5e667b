package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medprep-study-service/internal/app"
	"medprep-study-service/internal/config"
	"medprep-study-service/internal/generator"
	"medprep-study-service/internal/infra/memory"
	pgstore "medprep-study-service/internal/infra/postgres"
	redisstore "medprep-study-service/internal/infra/redis"
	"medprep-study-service/internal/llm"
	"medprep-study-service/internal/logger"
	"medprep-study-service/internal/metrics"
	"medprep-study-service/internal/suggest"
	transport "medprep-study-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the study server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{Mode: cfg.Log.Mode, File: cfg.Log.File})
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	blobs, cleanup, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := llm.NewProvider(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  config.TTLDuration(cfg.LLM.Timeout, llm.DefaultTimeout),
	}, log)
	if err != nil {
		return err
	}
	gen := generator.New(provider)
	log.Info("llm provider ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", provider.ModelID()))

	service := app.NewStudyService(app.Deps{
		Blobs:       blobs,
		Questions:   gen,
		Grader:      gen,
		Material:    gen,
		Suggestions: suggest.NewEngine(gen, config.TTLDuration(cfg.LLM.SuggestionTimeout, 15*time.Second), log),
		Logger:      log,
		SessionSize: cfg.Study.SessionSize,
	})

	metrics.Init()
	if cfg.Log.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(service, transport.Options{
		Logger:    log,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Collaborator calls may take up to the llm timeout.
		WriteTimeout: config.TTLDuration(cfg.LLM.Timeout, llm.DefaultTimeout) + 15*time.Second,
	}

	go func() {
		log.Info("starting study service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBlobStore picks the record backend: Postgres (cached in Redis when
// configured, in process otherwise), plain Redis, or memory.
func openBlobStore(ctx context.Context, cfg config.Config, log *zap.Logger) (app.BlobStore, func(), error) {
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, err
		}
	}
	cacheTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, nil, err
		}
	}

	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	switch {
	case pool != nil && redisClient != nil:
		log.Info("records in postgres, cached in redis")
		return redisstore.NewCachedStore(redisClient, pgstore.NewBlobStore(pool), cacheTTL), cleanup, nil
	case pool != nil:
		log.Info("records in postgres, cached in process")
		return memory.NewCachedStore(pgstore.NewBlobStore(pool), cacheTTL), cleanup, nil
	case redisClient != nil:
		log.Info("records in redis")
		return redisstore.NewBlobStore(redisClient, 0), cleanup, nil
	default:
		log.Warn("no storage configured, records kept in memory")
		return memory.NewBlobStore(), cleanup, nil
	}
}
