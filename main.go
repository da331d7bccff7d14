package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"follower-archive/internal/api"
	"follower-archive/internal/config"
	"follower-archive/internal/db"
	"follower-archive/internal/logging"
	"follower-archive/internal/redis"
	"follower-archive/internal/reports"
	"follower-archive/internal/source"
	"follower-archive/internal/storage"
	"follower-archive/internal/store"
	"follower-archive/internal/timewindow"
	"follower-archive/internal/tracker"
)

func main() {
	root := &cobra.Command{
		Use:           "follower-archive",
		Short:         "Capture follower/following snapshots and serve change analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newReportCmd(), newScheduleCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the pieces every command needs.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   store.Store
	cleanup func()
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel)

	if cfg.UseMemoryStore {
		return &app{cfg: cfg, log: log, store: store.NewMemory(), cleanup: func() {}}, nil
	}

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pg := store.NewPostgres(log, dbConn)
	if err := pg.EnsureSchema(ctx); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &app{cfg: cfg, log: log, store: pg, cleanup: dbConn.Close}, nil
}

func (a *app) newTracker() *tracker.Tracker {
	client := source.NewRESTClient(a.log, source.RESTConfig{
		BaseURL:         a.cfg.SourceBaseURL,
		Username:        a.cfg.SourceUsername,
		Password:        a.cfg.SourcePassword,
		SessionID:       a.cfg.SourceSessionID,
		SessionPath:     a.cfg.SessionPath,
		DisableSession:  a.cfg.DisableSession,
		EncryptionKey:   a.cfg.EncryptionKey,
		MaxRetries:      a.cfg.MaxRetries,
		RequestInterval: a.cfg.RequestInterval,
	})
	return tracker.New(a.log, a.store, client, a.cfg.TargetAccounts)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture all configured accounts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.cleanup()

			summaries, err := a.newTracker().RunOnce(ctx)
			for _, s := range summaries {
				fmt.Printf("%s: followers +%d/-%d, following +%d/-%d\n",
					s.TargetAccount, s.FollowersAdded, s.FollowersRemoved,
					s.FollowingAdded, s.FollowingRemoved)
			}
			return err
		},
	}
}

func newReportCmd() *cobra.Command {
	var (
		days    int
		account string
		topN    int
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print window counts and recent changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.cleanup()

			svc := reports.NewService(a.log, a.store)
			w := timewindow.Resolve(days, "", "")

			counts, err := svc.Counts(ctx, w, account)
			if err != nil {
				return err
			}
			fmt.Printf("window: %s .. %s\n", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
			fmt.Printf("followers: +%d/-%d (net %d)\n", counts.FollowersAdded, counts.FollowersRemoved, counts.FollowersNet)
			fmt.Printf("following: +%d/-%d (net %d)\n", counts.FollowingAdded, counts.FollowingRemoved, counts.FollowingNet)
			fmt.Printf("total changes: %d\n", counts.TotalChanges)

			events, err := svc.RecentChanges(ctx, w, account, topN)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("  %s  %-9s %-7s %s\n",
					ev.DetectedAt.Format(time.RFC3339), ev.ListType, ev.ChangeType, ev.User.Username)
			}

			if csvPath != "" {
				rows, err := svc.ExportChangesToCSV(ctx, csvPath, w, account)
				if err != nil {
					return err
				}
				fmt.Printf("exported %d rows to %s\n", rows, csvPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "window width in days")
	cmd.Flags().StringVar(&account, "account", "", "filter to one target account")
	cmd.Flags().IntVar(&topN, "top", 20, "number of recent changes to print")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also export the window's changes to this CSV file")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily capture scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			sched := tracker.NewScheduler(a.log, a.newTracker(), a.cfg.ScrapeHourUTC, a.cfg.ScrapeMinuteUTC)
			sched.Start()

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			a.log.Info("shutting_down")
			sched.Stop()
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.cleanup()

			var redisClient *redis.Client
			if a.cfg.RedisDSN != "" {
				redisClient, err = redis.New(a.cfg.RedisDSN)
				if err != nil {
					a.log.Warn("redis_connect_failed", "error", err)
					redisClient = nil
				} else {
					defer redisClient.Close()
				}
			}

			var sink storage.ExportSink
			if a.cfg.R2Bucket != "" {
				sink, err = storage.NewS3Sink(storage.S3Config{
					Endpoint:  a.cfg.R2Endpoint,
					Bucket:    a.cfg.R2Bucket,
					PublicURL: a.cfg.R2PublicURL,
					Region:    a.cfg.R2Region,
				})
				if err != nil {
					return fmt.Errorf("init export sink: %w", err)
				}
			} else {
				sink = storage.NewLocalSink(a.cfg.ExportDir)
			}

			srv := api.NewServer(a.log, a.store, reports.NewService(a.log, a.store),
				redisClient, sink, config.NewEnvStore(".env"), a.cfg)

			httpServer := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("http_listen_failed", "error", err)
					os.Exit(1)
				}
			}()
			a.log.Info("api_started", "addr", a.cfg.HTTPAddr)

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			a.log.Info("shutting_down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.log.Error("http_shutdown_failed", "error", err)
			}
			return nil
		},
	}
}
