package reports

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"follower-archive/internal/models"
	"follower-archive/internal/store"
	"follower-archive/internal/timewindow"
)

// Service computes read-only analytics over the snapshot/change history.
// Every call reads the store fresh; nothing is cached in process.
type Service struct {
	log   *slog.Logger
	store store.Store
}

func NewService(log *slog.Logger, st store.Store) *Service {
	return &Service{log: log, store: st}
}

// RecentChanges returns the change events inside the window, newest first,
// capped at limit when limit > 0.
func (s *Service) RecentChanges(ctx context.Context, w timewindow.Window, account string, limit int) ([]models.ChangeEvent, error) {
	events, err := s.store.ChangesSince(ctx, store.ChangeFilter{
		TargetAccount: account,
		Since:         &w.Start,
		Until:         &w.End,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	if events == nil {
		events = []models.ChangeEvent{}
	}
	return events, nil
}

// DailySummary groups change events by UTC calendar day, ascending. Days
// with no events are omitted entirely.
func (s *Service) DailySummary(ctx context.Context, w timewindow.Window, account string) ([]DaySummary, error) {
	events, err := s.RecentChanges(ctx, w, account, 0)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DaySummary)
	for _, ev := range events {
		day := ev.DetectedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DaySummary{Date: day}
			byDay[day] = d
		}
		switch {
		case ev.ListType == models.ListFollowers && ev.ChangeType == models.ChangeAdded:
			d.FollowersAdded++
		case ev.ListType == models.ListFollowers && ev.ChangeType == models.ChangeRemoved:
			d.FollowersRemoved++
		case ev.ListType == models.ListFollowing && ev.ChangeType == models.ChangeAdded:
			d.FollowingAdded++
		case ev.ListType == models.ListFollowing && ev.ChangeType == models.ChangeRemoved:
			d.FollowingRemoved++
		}
	}

	days := make([]DaySummary, 0, len(byDay))
	for _, d := range byDay {
		d.FollowersNet = d.FollowersAdded - d.FollowersRemoved
		d.FollowingNet = d.FollowingAdded - d.FollowingRemoved
		d.TotalChanges = d.FollowersAdded + d.FollowersRemoved + d.FollowingAdded + d.FollowingRemoved
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return days, nil
}

// Counts aggregates the four base counters over the whole window. All
// counters are materialized even when the window holds no events.
func (s *Service) Counts(ctx context.Context, w timewindow.Window, account string) (Counts, error) {
	events, err := s.RecentChanges(ctx, w, account, 0)
	if err != nil {
		return Counts{}, err
	}

	var c Counts
	for _, ev := range events {
		switch {
		case ev.ListType == models.ListFollowers && ev.ChangeType == models.ChangeAdded:
			c.FollowersAdded++
		case ev.ListType == models.ListFollowers && ev.ChangeType == models.ChangeRemoved:
			c.FollowersRemoved++
		case ev.ListType == models.ListFollowing && ev.ChangeType == models.ChangeAdded:
			c.FollowingAdded++
		case ev.ListType == models.ListFollowing && ev.ChangeType == models.ChangeRemoved:
			c.FollowingRemoved++
		}
	}
	c.FollowersNet = c.FollowersAdded - c.FollowersRemoved
	c.FollowingNet = c.FollowingAdded - c.FollowingRemoved
	c.TotalChanges = c.FollowersAdded + c.FollowersRemoved + c.FollowingAdded + c.FollowingRemoved

	return c, nil
}

// CurrentTotals reports the latest snapshot sizes for an account. An empty
// account or missing snapshots yields zeroed fields, never an error.
func (s *Service) CurrentTotals(ctx context.Context, account string) (CurrentTotals, error) {
	totals := CurrentTotals{TargetAccount: account}
	if account == "" {
		return totals, nil
	}

	followers, err := s.store.LatestSnapshot(ctx, account, models.ListFollowers)
	if err != nil {
		return totals, fmt.Errorf("read followers snapshot: %w", err)
	}
	following, err := s.store.LatestSnapshot(ctx, account, models.ListFollowing)
	if err != nil {
		return totals, fmt.Errorf("read following snapshot: %w", err)
	}

	if followers != nil {
		at := followers.CollectedAt
		totals.Followers = ListTotal{Count: len(followers.Users), CollectedAt: &at}
	}
	if following != nil {
		at := following.CollectedAt
		totals.Following = ListTotal{Count: len(following.Users), CollectedAt: &at}
	}
	totals.LastUpdated = laterOf(totals.Followers.CollectedAt, totals.Following.CollectedAt)

	return totals, nil
}

// Insights derives streaks, best/worst days, daily averages and the most
// recent follower movements from the window's history.
func (s *Service) Insights(ctx context.Context, w timewindow.Window, account string, topN int) (Insights, error) {
	days, err := s.DailySummary(ctx, w, account)
	if err != nil {
		return Insights{}, err
	}
	counts, err := s.Counts(ctx, w, account)
	if err != nil {
		return Insights{}, err
	}
	events, err := s.RecentChanges(ctx, w, account, 0)
	if err != nil {
		return Insights{}, err
	}

	ins := Insights{
		NetFollowers:  counts.FollowersNet,
		NetFollowing:  counts.FollowingNet,
		TotalChanges:  counts.TotalChanges,
		NewFollowers:  []models.ChangeEvent{},
		LostFollowers: []models.ChangeEvent{},
	}

	// streak/best/worst scan the sparse series in ascending date order;
	// absent days neither extend nor break a streak
	streak, best, worst := 0, -1, -1
	for i, d := range days {
		if d.FollowersNet > 0 {
			streak++
			if streak > ins.PositiveStreakDays {
				ins.PositiveStreakDays = streak
			}
		} else {
			streak = 0
		}
		if best < 0 || d.FollowersNet > days[best].FollowersNet {
			best = i
		}
		if worst < 0 || d.FollowersNet < days[worst].FollowersNet {
			worst = i
		}
	}
	if best >= 0 {
		ins.BestDay = dayNet(days[best])
		ins.WorstDay = dayNet(days[worst])
		var sumFollowers, sumFollowing int
		for _, d := range days {
			sumFollowers += d.FollowersNet
			sumFollowing += d.FollowingNet
		}
		ins.AvgFollowersNet = round2(float64(sumFollowers) / float64(len(days)))
		ins.AvgFollowingNet = round2(float64(sumFollowing) / float64(len(days)))
	}

	for _, ev := range events {
		if ev.ListType != models.ListFollowers {
			continue
		}
		if ev.ChangeType == models.ChangeAdded && len(ins.NewFollowers) < topN {
			ins.NewFollowers = append(ins.NewFollowers, ev)
		}
		if ev.ChangeType == models.ChangeRemoved && len(ins.LostFollowers) < topN {
			ins.LostFollowers = append(ins.LostFollowers, ev)
		}
	}
	if len(events) > 0 {
		latest := events[0]
		ins.LatestActivity = &latest
	}

	return ins, nil
}

func dayNet(d DaySummary) *DayNet {
	return &DayNet{
		Date:         d.Date,
		FollowersNet: d.FollowersNet,
		FollowingNet: d.FollowingNet,
		TotalChanges: d.TotalChanges,
	}
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// sortUsers orders by case-insensitive username, then case-insensitive
// full_name. Stable for equal keys.
func sortUsers(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		ui, uj := strings.ToLower(users[i].Username), strings.ToLower(users[j].Username)
		if ui != uj {
			return ui < uj
		}
		return strings.ToLower(users[i].FullName) < strings.ToLower(users[j].FullName)
	})
}

func truncateUsers(users []models.User, limit int) []models.User {
	if limit > 0 && len(users) > limit {
		return users[:limit]
	}
	return users
}
