// Package main is the entrypoint for the prolearn API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/prolearn/prolearn/internal/audit"
	"github.com/prolearn/prolearn/internal/cache"
	"github.com/prolearn/prolearn/internal/config"
	"github.com/prolearn/prolearn/internal/handler"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/metrics"
	"github.com/prolearn/prolearn/internal/middleware"
	"github.com/prolearn/prolearn/internal/repository"
	"github.com/prolearn/prolearn/internal/server"
	"github.com/prolearn/prolearn/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	if cfg.AdminTokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH not set; admin routes are disabled")
	}

	recorder := metrics.NewInMemory()
	allocator := idalloc.New(repo,
		idalloc.WithPolicy(cfg.AllocPolicy()),
		idalloc.WithRecorder(recorder),
		idalloc.WithLogger(logger),
	)

	userService := service.NewUserService(repo, allocator, cacheClient, recorder, logger)
	identifierService := service.NewIdentifierService(repo, allocator, logger)

	publisher := audit.NewPublisher(cacheClient.Client(), logger, recorder)
	userService.SetEventPublisher(publisher)
	identifierService.SetEventPublisher(publisher)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := server.NewRouter(server.RouterConfig{
		Logger:      logger,
		Root:        handler.New(version),
		Health:      handler.NewHealthHandler(repo, cacheClient),
		Metrics:     handler.NewMetricsHandler(recorder),
		Users:       handler.NewUserHandler(userService, logger),
		Identifiers: handler.NewIdentifierHandler(identifierService, logger),
		Audit:       handler.NewAuditHandler(repo, logger),
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORS: corsCfg,
		RateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: cacheClient,
			Enabled: cfg.RateLimitRegisterEnabled,
			RPS:     cfg.RateLimitRegisterRPS,
			Burst:   cfg.RateLimitRegisterBurst,
		},
		Admin: middleware.AdminConfig{
			Logger:    logger,
			TokenHash: cfg.AdminTokenHash,
			Cache:     cacheClient,
		},
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.AuditWorkerEnabled {
		worker := audit.NewWorker(cacheClient.Client(), repo, logger, audit.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.AuditWorkerBatchSize)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit worker stopped", slog.String("error", err.Error()))
			}
		}()
		// Registered last so it drains before Redis and Postgres close.
		srv.OnShutdown("audit worker", worker.Shutdown)
	}

	policy := allocator.Policy()
	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("env", cfg.AppEnv),
		slog.String("version", version),
		slog.Int("alloc_max_attempts", policy.MaxAttempts),
		slog.Int("alloc_advance_every", policy.AdvanceEvery),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger builds the process logger from LOG_FORMAT and LOG_LEVEL and
// installs it as the slog default.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With(slog.String("service", "prolearn"))
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			username = "redacted"
		}
		parsed.User = url.User(username)
	}

	return parsed.String()
}

// sanitizeError replaces every secret in err's message with its redacted
// form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
