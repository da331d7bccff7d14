package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"follower-archive/internal/config"
	"follower-archive/internal/redis"
	"follower-archive/internal/reports"
	"follower-archive/internal/security"
	"follower-archive/internal/storage"
	"follower-archive/internal/store"
)

type Server struct {
	log      *slog.Logger
	store    store.Store
	reports  *reports.Service
	redis    *redis.Client
	sink     storage.ExportSink
	envStore *config.EnvStore
	cfg      config.Config
	limiter  *security.LimiterStore
	router   *gin.Engine
}

func NewServer(log *slog.Logger, st store.Store, rep *reports.Service, redisClient *redis.Client, sink storage.ExportSink, envStore *config.EnvStore, cfg config.Config) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		log:      log,
		store:    st,
		reports:  rep,
		redis:    redisClient,
		sink:     sink,
		envStore: envStore,
		cfg:      cfg,
		limiter:  security.NewLimiterStore(1, 60, 10*time.Minute),
		router:   gin.New(),
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/changes", s.recentChanges)
		v1.GET("/daily", s.dailySummary)
		v1.GET("/counts", s.counts)
		v1.GET("/totals", s.currentTotals)
		v1.GET("/insights", s.insights)
		v1.GET("/gaps", s.followBackGaps)
		v1.GET("/breakdown", s.relationshipBreakdown)
		v1.GET("/compare", s.compareSnapshots)
		v1.GET("/history", s.snapshotHistory)
		v1.POST("/export", s.exportChanges)
		v1.GET("/health", s.health)

		admin := v1.Group("/admin")
		admin.Use(s.adminAuthMiddleware())
		{
			admin.GET("/settings", s.getSettings)
			admin.POST("/accounts", s.setAccounts)
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
