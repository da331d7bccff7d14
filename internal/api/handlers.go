package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"follower-archive/internal/security"
	"follower-archive/internal/timewindow"
)

const cacheTTL = 60 * time.Second

// query parses the window/account/limit parameters shared by the analytics
// endpoints. An invalid account aborts the request.
func (s *Server) query(c *gin.Context) (timewindow.Window, string, int, bool) {
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", 0)
	w := timewindow.Resolve(days, c.Query("start"), c.Query("end"))

	account := c.Query("account")
	if account != "" {
		if err := security.ValidateAccount(account); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "invalid_account", "message": err.Error()},
			})
			return w, "", 0, false
		}
	}
	return w, account, limit, true
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) recentChanges(c *gin.Context) {
	w, account, limit, ok := s.query(c)
	if !ok {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	events, err := s.reports.RecentChanges(ctx, w, account, limit)
	if err != nil {
		s.fail(c, "recent_changes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": events, "count": len(events)})
}

func (s *Server) dailySummary(c *gin.Context) {
	w, account, _, ok := s.query(c)
	if !ok {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	days, err := s.reports.DailySummary(ctx, w, account)
	if err != nil {
		s.fail(c, "daily_summary", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (s *Server) counts(c *gin.Context) {
	w, account, _, ok := s.query(c)
	if !ok {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	counts, err := s.reports.Counts(ctx, w, account)
	if err != nil {
		s.fail(c, "counts", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) currentTotals(c *gin.Context) {
	_, account, _, ok := s.query(c)
	if !ok {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	totals, err := s.reports.CurrentTotals(ctx, account)
	if err != nil {
		s.fail(c, "current_totals", err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (s *Server) insights(c *gin.Context) {
	w, account, _, ok := s.query(c)
	if !ok {
		return
	}
	topN := intQuery(c, "top", 5)

	cacheKey := fmt.Sprintf("insights:%s:%d:%s:%s", account, topN,
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	if s.serveCached(c, cacheKey) {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	ins, err := s.reports.Insights(ctx, w, account, topN)
	if err != nil {
		s.fail(c, "insights", err)
		return
	}
	s.respondCaching(c, cacheKey, ins)
}

func (s *Server) followBackGaps(c *gin.Context) {
	_, account, limit, ok := s.query(c)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	gaps, err := s.reports.FollowBackGaps(ctx, account, limit)
	if err != nil {
		s.fail(c, "follow_back_gaps", err)
		return
	}
	c.JSON(http.StatusOK, gaps)
}

func (s *Server) relationshipBreakdown(c *gin.Context) {
	_, account, limit, ok := s.query(c)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("breakdown:%s:%d", account, limit)
	if s.serveCached(c, cacheKey) {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	bd, err := s.reports.RelationshipBreakdown(ctx, account, limit)
	if err != nil {
		s.fail(c, "relationship_breakdown", err)
		return
	}
	s.respondCaching(c, cacheKey, bd)
}

func (s *Server) compareSnapshots(c *gin.Context) {
	w, account, limit, ok := s.query(c)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	cmp, err := s.reports.CompareSnapshots(ctx, account, w, limit)
	if err != nil {
		s.fail(c, "compare_snapshots", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) snapshotHistory(c *gin.Context) {
	w, account, limit, ok := s.query(c)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 30
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	hist, err := s.reports.SnapshotHistory(ctx, account, w, limit)
	if err != nil {
		s.fail(c, "snapshot_history", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (s *Server) exportChanges(c *gin.Context) {
	w, account, _, ok := s.query(c)
	if !ok {
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	data, rows, err := s.reports.ChangesCSV(ctx, w, account)
	if err != nil {
		s.fail(c, "export", err)
		return
	}

	name := fmt.Sprintf("changes_%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	location, err := s.sink.Upload(ctx, name, data)
	if err != nil {
		s.fail(c, "export_upload", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"location": location, "rows": rows})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	resp := gin.H{"status": "ok"}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			resp["redis"] = "down"
		} else {
			resp["redis"] = "ok"
			if n, err := s.redis.DailyChanges(ctx, time.Now().UTC()); err == nil {
				resp["changes_today"] = n
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"target_accounts":   s.cfg.TargetAccounts,
		"scrape_hour_utc":   s.cfg.ScrapeHourUTC,
		"scrape_minute_utc": s.cfg.ScrapeMinuteUTC,
	})
}

func (s *Server) setAccounts(c *gin.Context) {
	var body struct {
		Accounts []string `json:"accounts"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_body", "message": "expected {\"accounts\": [...]}"},
		})
		return
	}
	for _, account := range body.Accounts {
		if err := security.ValidateAccount(account); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "invalid_account", "message": fmt.Sprintf("%s: %v", account, err)},
			})
			return
		}
	}

	if s.envStore != nil {
		if err := s.envStore.SetTargetAccounts(body.Accounts); err != nil {
			s.fail(c, "settings_persist", err)
			return
		}
	}
	s.cfg = s.cfg.WithAccounts(body.Accounts)
	s.log.Info("accounts_updated", "count", len(body.Accounts))

	// the capture worker picks the new list up on its next restart
	c.JSON(http.StatusOK, gin.H{"target_accounts": s.cfg.TargetAccounts})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	s.log.Error(op+"_failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "internal_error", "message": "operation failed"},
	})
}

// serveCached writes a cached JSON body if present. Cache errors degrade to
// a normal read.
func (s *Server) serveCached(c *gin.Context, key string) bool {
	if s.redis == nil {
		return false
	}
	ctx, cancel := s.ctx(c)
	defer cancel()

	cached, err := s.redis.Get(ctx, key)
	if err != nil || cached == "" {
		return false
	}
	c.Header("X-Cache", "HIT")
	c.Data(http.StatusOK, "application/json", []byte(cached))
	return true
}

func (s *Server) respondCaching(c *gin.Context, key string, payload any) {
	if s.redis != nil {
		if data, err := json.Marshal(payload); err == nil {
			ctx, cancel := s.ctx(c)
			_ = s.redis.Set(ctx, key, string(data), cacheTTL)
			cancel()
		}
	}
	c.JSON(http.StatusOK, payload)
}
