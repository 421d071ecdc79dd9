// Package main runs the car listing price tracker: the chat endpoint and the background poller.
package main

import (
	"carwatch/config"
	"carwatch/conversation"
	"carwatch/logging"
	"carwatch/notify"
	"carwatch/poll"
	"carwatch/scraper"
	"carwatch/server"
	"carwatch/session"
	"carwatch/storage"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	backend, closeBackend, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	store, err := storage.Open(ctx, backend, cfg.Tracking.DefaultThresholdPercent, logger)
	if err != nil {
		return fmt.Errorf("open tracking store: %w", err)
	}

	sessions, locker, closeSessions, err := openSessions(ctx, cfg.Session, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	source := scraper.New(&http.Client{Timeout: cfg.Poll.FetchTimeout}, logger)
	dispatcher := newDispatcher(cfg.Notify, logger)

	scheduler := poll.New(source, store, dispatcher, poll.Config{
		Interval:        cfg.Poll.Interval,
		Pacing:          cfg.Poll.Pacing,
		FetchTimeout:    cfg.Poll.FetchTimeout,
		PersistAttempts: cfg.Poll.PersistAttempts,
		PollOnStart:     cfg.Poll.OnStart,
	}, logger)

	engine := conversation.New(conversation.Config{
		Store:        store,
		Source:       source,
		Sessions:     sessions,
		Locker:       locker,
		FetchTimeout: cfg.Poll.FetchTimeout,
		Logger:       logger,
	})

	srv := server.New(&server.Config{
		Conversation:    engine,
		Poller:          scheduler,
		Logger:          logger,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	logger.Info("Service starting",
		"storage", cfg.Storage.Backend,
		"sessions", cfg.Session.Backend,
		"notify", cfg.Notify.Backend,
		"poll_interval", cfg.Poll.Interval,
		"threshold_percent", cfg.Tracking.DefaultThresholdPercent)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	return g.Wait()
}

// openBackend builds the profile backend selected by cfg. The returned func releases it.
func openBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, func(), error) {
	switch cfg.Backend {
	case config.StorageGCS:
		var opts []option.ClientOption
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("Using Cloud Storage backend", "bucket", cfg.Bucket)
		return storage.NewGCSBackend(client, cfg.Bucket, logger), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}, nil

	case config.StoragePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		pg, err := storage.NewPostgresBackend(connectCtx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("Using Postgres backend")
		return pg, pg.Close, nil

	default:
		local, err := storage.NewLocalBackend(cfg.LocalPath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Running with local storage", "storage_path", cfg.LocalPath)
		return local, func() {}, nil
	}
}

// openSessions builds the session store and per-user locker selected by cfg.
func openSessions(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (session.Store, session.Locker, func(), error) {
	if cfg.Backend != config.SessionRedis {
		logger.Info("Keeping sessions in memory", "ttl", cfg.TTL)
		return session.NewMemoryStore(cfg.TTL), session.NewMemoryLocker(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Keeping sessions in Redis", "addr", cfg.RedisAddr, "ttl", cfg.TTL, "lock_ttl", cfg.LockTTL)
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("Failed to close redis client", "error", err)
		}
	}
	return session.NewRedisStore(rdb, cfg.TTL), session.NewRedisLocker(rdb, cfg.LockTTL), closeFn, nil
}

func newDispatcher(cfg config.NotifyConfig, logger *slog.Logger) notify.Dispatcher {
	if cfg.Backend == config.NotifyWebhook {
		logger.Info("Delivering notifications by webhook", "url", cfg.WebhookURL)
		return notify.NewWebhookDispatcher(cfg.WebhookURL, cfg.WebhookToken, logger)
	}
	logger.Info("Mock notification mode enabled (NOTIFY_BACKEND=log)")
	return notify.NewLogDispatcher(logger)
}
