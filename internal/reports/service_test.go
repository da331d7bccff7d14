package reports

import (
	"context"
	"testing"
	"time"

	"follower-archive/internal/logging"
	"follower-archive/internal/models"
	"follower-archive/internal/store"
	"follower-archive/internal/timewindow"
)

func day(d int, hour int) time.Time {
	return time.Date(2025, 6, d, hour, 0, 0, 0, time.UTC)
}

func event(account string, listType models.ListType, changeType models.ChangeType, at time.Time, pk, username string) models.ChangeEvent {
	return models.ChangeEvent{
		TargetAccount: account,
		ListType:      listType,
		ChangeType:    changeType,
		DetectedAt:    at,
		User:          models.User{PK: pk, Username: username},
	}
}

func seedService(t *testing.T, events ...models.ChangeEvent) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemory()
	if len(events) > 0 {
		if _, err := st.StoreChanges(context.Background(), events); err != nil {
			t.Fatalf("seed changes: %v", err)
		}
	}
	return NewService(logging.New("error"), st), st
}

func monthWindow() timewindow.Window {
	return timewindow.Window{Start: day(1, 0), End: day(30, 0)}
}

func TestRecentChanges_WindowAndOrder(t *testing.T) {
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 3), "1", "alice"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(5, 3), "2", "bob"),
		event("demo", models.ListFollowers, models.ChangeRemoved, day(9, 3), "1", "alice"),
		event("other", models.ListFollowers, models.ChangeAdded, day(5, 3), "9", "zed"),
	)

	w := timewindow.Window{Start: day(3, 0), End: day(10, 0)}
	events, err := svc.RecentChanges(context.Background(), w, "demo", 0)
	if err != nil {
		t.Fatalf("RecentChanges: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
	if !events[0].DetectedAt.After(events[1].DetectedAt) {
		t.Error("expected newest first")
	}
	for _, ev := range events {
		if ev.TargetAccount != "demo" {
			t.Errorf("unexpected account %s", ev.TargetAccount)
		}
	}

	capped, err := svc.RecentChanges(context.Background(), w, "demo", 1)
	if err != nil {
		t.Fatalf("RecentChanges limit: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("expected limit to cap at 1, got %d", len(capped))
	}
}

func TestDailySummary_SparseAscending(t *testing.T) {
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(1, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(1, 8), "2", "b"),
		event("demo", models.ListFollowing, models.ChangeRemoved, day(1, 9), "3", "c"),
		// day 2 and 3 silent
		event("demo", models.ListFollowers, models.ChangeRemoved, day(4, 3), "1", "a"),
	)

	days, err := svc.DailySummary(context.Background(), monthWindow(), "demo")
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}

	if len(days) != 2 {
		t.Fatalf("expected 2 sparse days, got %d", len(days))
	}
	if days[0].Date != "2025-06-01" || days[1].Date != "2025-06-04" {
		t.Errorf("expected ascending sparse dates, got %s, %s", days[0].Date, days[1].Date)
	}

	d := days[0]
	if d.FollowersAdded != 2 || d.FollowingRemoved != 1 {
		t.Errorf("day 1 counters wrong: %+v", d)
	}
	if d.FollowersNet != 2 || d.FollowingNet != -1 || d.TotalChanges != 3 {
		t.Errorf("day 1 derived fields wrong: %+v", d)
	}
}

func TestCounts_TotalsConsistent(t *testing.T) {
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(1, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 3), "2", "b"),
		event("demo", models.ListFollowers, models.ChangeRemoved, day(3, 3), "1", "a"),
		event("demo", models.ListFollowing, models.ChangeAdded, day(3, 3), "4", "d"),
		event("demo", models.ListFollowing, models.ChangeRemoved, day(4, 3), "5", "e"),
	)

	c, err := svc.Counts(context.Background(), monthWindow(), "demo")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}

	if c.FollowersAdded != 2 || c.FollowersRemoved != 1 || c.FollowingAdded != 1 || c.FollowingRemoved != 1 {
		t.Errorf("base counters wrong: %+v", c)
	}
	if c.FollowersNet != c.FollowersAdded-c.FollowersRemoved {
		t.Errorf("followers_net = %d, want %d", c.FollowersNet, c.FollowersAdded-c.FollowersRemoved)
	}
	if c.TotalChanges != c.FollowersAdded+c.FollowersRemoved+c.FollowingAdded+c.FollowingRemoved {
		t.Errorf("total_changes inconsistent: %+v", c)
	}
}

func TestCounts_EmptyWindow(t *testing.T) {
	svc, _ := seedService(t)

	c, err := svc.Counts(context.Background(), monthWindow(), "demo")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c != (Counts{}) {
		t.Errorf("expected zeroed counts, got %+v", c)
	}
}

func TestCurrentTotals(t *testing.T) {
	svc, st := seedService(t)
	ctx := context.Background()

	first := day(1, 3)
	second := day(2, 3)
	if _, err := st.StoreSnapshot(ctx, "demo", models.ListFollowers, []models.User{{PK: "1"}, {PK: "2"}}, first); err != nil {
		t.Fatal(err)
	}
	if _, err := st.StoreSnapshot(ctx, "demo", models.ListFollowing, []models.User{{PK: "3"}}, second); err != nil {
		t.Fatal(err)
	}

	totals, err := svc.CurrentTotals(ctx, "demo")
	if err != nil {
		t.Fatalf("CurrentTotals: %v", err)
	}
	if totals.Followers.Count != 2 || totals.Following.Count != 1 {
		t.Errorf("counts wrong: %+v", totals)
	}
	if totals.LastUpdated == nil || !totals.LastUpdated.Equal(second) {
		t.Errorf("last_updated should be the later snapshot time, got %v", totals.LastUpdated)
	}
}

func TestCurrentTotals_Absent(t *testing.T) {
	svc, _ := seedService(t)

	for _, account := range []string{"", "ghost"} {
		totals, err := svc.CurrentTotals(context.Background(), account)
		if err != nil {
			t.Fatalf("CurrentTotals(%q): %v", account, err)
		}
		if totals.Followers.Count != 0 || totals.Followers.CollectedAt != nil || totals.LastUpdated != nil {
			t.Errorf("CurrentTotals(%q) not zeroed: %+v", account, totals)
		}
	}
}

func TestInsights_PositiveStreak(t *testing.T) {
	// daily followers_net series: +1, +2, -1, +3 -> longest positive run is 2
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(1, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 3), "2", "b"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 4), "3", "c"),
		event("demo", models.ListFollowers, models.ChangeRemoved, day(3, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(4, 3), "4", "d"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(4, 4), "5", "e"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(4, 5), "6", "f"),
	)

	ins, err := svc.Insights(context.Background(), monthWindow(), "demo", 5)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.PositiveStreakDays != 2 {
		t.Errorf("positive_streak_days = %d, want 2", ins.PositiveStreakDays)
	}
	if ins.BestDay == nil || ins.BestDay.Date != "2025-06-04" || ins.BestDay.FollowersNet != 3 {
		t.Errorf("best_day wrong: %+v", ins.BestDay)
	}
	if ins.WorstDay == nil || ins.WorstDay.Date != "2025-06-03" || ins.WorstDay.FollowersNet != -1 {
		t.Errorf("worst_day wrong: %+v", ins.WorstDay)
	}
	// mean over (+1, +2, -1, +3) = 1.25
	if ins.AvgFollowersNet != 1.25 {
		t.Errorf("avg_followers_net = %v, want 1.25", ins.AvgFollowersNet)
	}
}

func TestInsights_TieBreakFirstOccurrence(t *testing.T) {
	// two days share net +1; best_day must be the earlier one
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(5, 3), "2", "b"),
	)

	ins, err := svc.Insights(context.Background(), monthWindow(), "demo", 5)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.BestDay == nil || ins.BestDay.Date != "2025-06-02" {
		t.Errorf("best_day tie must pick first occurrence, got %+v", ins.BestDay)
	}
	if ins.WorstDay == nil || ins.WorstDay.Date != "2025-06-02" {
		t.Errorf("worst_day tie must pick first occurrence, got %+v", ins.WorstDay)
	}
}

func TestInsights_TopNAndLatest(t *testing.T) {
	svc, _ := seedService(t,
		event("demo", models.ListFollowers, models.ChangeAdded, day(1, 3), "1", "a"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(2, 3), "2", "b"),
		event("demo", models.ListFollowers, models.ChangeAdded, day(3, 3), "3", "c"),
		event("demo", models.ListFollowers, models.ChangeRemoved, day(4, 3), "1", "a"),
		event("demo", models.ListFollowing, models.ChangeAdded, day(5, 3), "9", "z"),
	)

	ins, err := svc.Insights(context.Background(), monthWindow(), "demo", 2)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}

	if len(ins.NewFollowers) != 2 {
		t.Fatalf("expected topN=2 new followers, got %d", len(ins.NewFollowers))
	}
	if ins.NewFollowers[0].User.PK != "3" || ins.NewFollowers[1].User.PK != "2" {
		t.Errorf("new followers not in recent-first order: %+v", ins.NewFollowers)
	}
	if len(ins.LostFollowers) != 1 || ins.LostFollowers[0].User.PK != "1" {
		t.Errorf("lost followers wrong: %+v", ins.LostFollowers)
	}
	if ins.LatestActivity == nil || ins.LatestActivity.User.PK != "9" {
		t.Errorf("latest_activity should be the newest event overall, got %+v", ins.LatestActivity)
	}
	if ins.NetFollowers != 2 || ins.TotalChanges != 5 {
		t.Errorf("echoed counts wrong: %+v", ins)
	}
}

func TestInsights_Empty(t *testing.T) {
	svc, _ := seedService(t)

	ins, err := svc.Insights(context.Background(), monthWindow(), "demo", 5)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.BestDay != nil || ins.WorstDay != nil || ins.LatestActivity != nil {
		t.Errorf("expected nil picks on empty history: %+v", ins)
	}
	if ins.AvgFollowersNet != 0 || ins.PositiveStreakDays != 0 {
		t.Errorf("expected zeroed aggregates: %+v", ins)
	}
}
