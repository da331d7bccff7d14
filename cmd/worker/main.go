package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"follower-archive/internal/config"
	"follower-archive/internal/db"
	"follower-archive/internal/logging"
	"follower-archive/internal/models"
	"follower-archive/internal/redis"
	"follower-archive/internal/source"
	"follower-archive/internal/store"
	"follower-archive/internal/tracker"
)

// countingStore bumps the redis per-day change counter alongside every
// change-event write, so the dashboard's health endpoint can report today's
// activity without a database scan.
type countingStore struct {
	store.Store
	log   *slog.Logger
	redis *redis.Client
}

func (c *countingStore) StoreChanges(ctx context.Context, events []models.ChangeEvent) (int, error) {
	n, err := c.Store.StoreChanges(ctx, events)
	if err == nil && n > 0 && c.redis != nil {
		// counter is advisory; the write itself already succeeded
		if _, cerr := c.redis.IncrementDailyChanges(ctx, time.Now().UTC(), n); cerr != nil {
			c.log.Warn("daily_counter_failed", "error", cerr)
		}
	}
	return n, err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker", "service", "follower-archive-worker",
		"accounts", len(cfg.TargetAccounts),
		"schedule_utc", time.Date(0, 1, 1, cfg.ScrapeHourUTC, cfg.ScrapeMinuteUTC, 0, 0, time.UTC).Format("15:04"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.UseMemoryStore {
		st = store.NewMemory()
		logger.Warn("using_memory_store")
	} else {
		// connect with retry; the database may still be coming up
		var dbConn *db.DB
		for i := 0; i < 5; i++ {
			dbConn, err = db.New(ctx, cfg.DBDSN)
			if err == nil {
				break
			}
			logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			logger.Error("db_connect_failed", "error", err)
			os.Exit(1)
		}
		defer dbConn.Close()

		pg := store.NewPostgres(logger, dbConn)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("schema_init_failed", "error", err)
			os.Exit(1)
		}
		st = pg
	}

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Warn("redis_connect_failed", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	client := source.NewRESTClient(logger, source.RESTConfig{
		BaseURL:         cfg.SourceBaseURL,
		Username:        cfg.SourceUsername,
		Password:        cfg.SourcePassword,
		SessionID:       cfg.SourceSessionID,
		SessionPath:     cfg.SessionPath,
		DisableSession:  cfg.DisableSession,
		EncryptionKey:   cfg.EncryptionKey,
		MaxRetries:      cfg.MaxRetries,
		RequestInterval: cfg.RequestInterval,
	})

	t := tracker.New(logger, &countingStore{Store: st, log: logger, redis: redisClient}, client, cfg.TargetAccounts)

	sched := tracker.NewScheduler(logger, t, cfg.ScrapeHourUTC, cfg.ScrapeMinuteUTC)
	sched.Start()

	logger.Info("worker_started")

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")
	sched.Stop()

	logger.Info("worker_stopped")
}
