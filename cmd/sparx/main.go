package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbonduro/sparx/internal/config"
	"github.com/vbonduro/sparx/internal/db"
	"github.com/vbonduro/sparx/internal/kvstore"
	"github.com/vbonduro/sparx/internal/kvstore/local"
	redisstore "github.com/vbonduro/sparx/internal/kvstore/redis"
	"github.com/vbonduro/sparx/internal/logging"
	"github.com/vbonduro/sparx/internal/notify"
	"github.com/vbonduro/sparx/internal/service"
	"github.com/vbonduro/sparx/internal/store"
	"github.com/vbonduro/sparx/internal/web"
	"github.com/vbonduro/sparx/internal/workflow"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := newKVStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		return
	}
	defer closeKV()

	events := notify.NewAsync(newPublisher(cfg, logger), 64, logger)
	defer events.Close()

	secret, err := sessionSecret(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session secret", "error", err)
		return
	}
	tokens, err := web.NewClientTokens(secret, cfg.SessionTTL)
	if err != nil {
		logger.Error("failed to initialize client tokens", "error", err)
		return
	}

	clients := service.NewClientService(kv, cfg.FavoritesKey, events, logger,
		service.WithAppOptions(workflow.WithDelays(cfg.LoginDelay, cfg.ReserveDelay)),
		service.WithIdleTTL(cfg.ClientIdleTTL),
		service.WithMaxClients(cfg.MaxClients),
	)
	server := web.NewServer(clients, tokens, logger)

	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// newKVStore opens the configured durable backend. The returned func
// releases it.
func newKVStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Store, func(), error) {
	switch cfg.StorageBackend {
	case "local":
		logger.Info("using local file storage", "path", cfg.StorageLocalPath)
		s, err := local.NewLocalStore(cfg.StorageLocalPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "redis":
		logger.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		s, err := redisstore.NewRedisStore(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "sparx:",
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("failed to close redis", "error", err)
			}
		}, nil
	default:
		logger.Info("using sqlite storage", "path", cfg.DBPath)
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store.NewKVStore(database), func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}, nil
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) notify.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set, reservation events go to the log")
		return notify.NewLogPublisher(logger)
	}
	logger.Info("publishing reservation events to rabbitmq", "queue", notify.DefaultQueue)
	return notify.NewAMQPPublisher(cfg.RabbitMQURL, notify.DefaultQueue)
}

// sessionSecret returns the configured signing secret, or a random one when
// none is set. Client cookies signed with a random secret do not survive a
// restart.
func sessionSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	logger.Warn("SESSION_SECRET not set, generating an ephemeral one")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return secret, nil
}
