package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"follower-archive/internal/api"
	"follower-archive/internal/config"
	"follower-archive/internal/db"
	"follower-archive/internal/logging"
	"follower-archive/internal/redis"
	"follower-archive/internal/reports"
	"follower-archive/internal/storage"
	"follower-archive/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "follower-archive-api", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.UseMemoryStore {
		st = store.NewMemory()
		logger.Warn("using_memory_store")
	} else {
		dbConn, err := db.New(ctx, cfg.DBDSN)
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
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var sink storage.ExportSink
	if cfg.R2Bucket != "" {
		sink, err = storage.NewS3Sink(storage.S3Config{
			Endpoint:  cfg.R2Endpoint,
			Bucket:    cfg.R2Bucket,
			PublicURL: cfg.R2PublicURL,
			Region:    cfg.R2Region,
		})
		if err != nil {
			logger.Error("export_sink_init_failed", "error", err)
			os.Exit(1)
		}
		logger.Info("using_s3_exports", "endpoint", cfg.R2Endpoint)
	} else {
		sink = storage.NewLocalSink(cfg.ExportDir)
		logger.Info("using_local_exports", "dir", cfg.ExportDir)
	}

	srv := api.NewServer(logger, st, reports.NewService(logger, st),
		redisClient, sink, config.NewEnvStore(".env"), cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	logger.Info("api_stopped")
}
