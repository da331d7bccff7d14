package store

import (
	"context"
	"testing"
	"time"

	"follower-archive/internal/models"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedSnapshots(t *testing.T, m *Memory) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		users := []models.User{{PK: "1", Username: "alice"}}
		if _, err := m.StoreSnapshot(ctx, "demo", models.ListFollowers, users, base.AddDate(0, 0, i)); err != nil {
			t.Fatalf("StoreSnapshot: %v", err)
		}
	}
}

func TestMemory_LatestSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	snap, err := m.LatestSnapshot(ctx, "demo", models.ListFollowers)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatal("expected absence to be nil, nil")
	}

	seedSnapshots(t, m)

	snap, err = m.LatestSnapshot(ctx, "demo", models.ListFollowers)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap == nil || !snap.CollectedAt.Equal(base.AddDate(0, 0, 2)) {
		t.Fatalf("latest = %+v, want day 3", snap)
	}

	// other list type is a separate history
	snap, _ = m.LatestSnapshot(ctx, "demo", models.ListFollowing)
	if snap != nil {
		t.Fatal("following history should be empty")
	}
}

func TestMemory_SnapshotAt(t *testing.T) {
	m := NewMemory()
	seedSnapshots(t, m)
	ctx := context.Background()

	moment := base.AddDate(0, 0, 1).Add(time.Hour)

	before, err := m.SnapshotAt(ctx, "demo", models.ListFollowers, moment, Before)
	if err != nil {
		t.Fatalf("SnapshotAt before: %v", err)
	}
	if before == nil || !before.CollectedAt.Equal(base.AddDate(0, 0, 1)) {
		t.Errorf("before = %+v, want day 2", before)
	}

	after, err := m.SnapshotAt(ctx, "demo", models.ListFollowers, moment, After)
	if err != nil {
		t.Fatalf("SnapshotAt after: %v", err)
	}
	if after == nil || !after.CollectedAt.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("after = %+v, want day 3", after)
	}

	// nothing before the very first snapshot
	none, _ := m.SnapshotAt(ctx, "demo", models.ListFollowers, base.Add(-time.Hour), Before)
	if none != nil {
		t.Errorf("expected nil before first snapshot, got %+v", none)
	}
}

func TestMemory_SnapshotHistory(t *testing.T) {
	m := NewMemory()
	seedSnapshots(t, m)
	ctx := context.Background()

	history, err := m.SnapshotHistory(ctx, "demo", models.ListFollowers, SnapshotFilter{Limit: 2})
	if err != nil {
		t.Fatalf("SnapshotHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if !history[0].CollectedAt.After(history[1].CollectedAt) {
		t.Error("history not newest first")
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 2)
	history, _ = m.SnapshotHistory(ctx, "demo", models.ListFollowers, SnapshotFilter{Start: &start, End: &end})
	if len(history) != 1 || !history[0].CollectedAt.Equal(start) {
		t.Errorf("windowed history = %+v, want only day 2", history)
	}
}

func TestMemory_ChangesSince(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	events := []models.ChangeEvent{
		{TargetAccount: "demo", ListType: models.ListFollowers, ChangeType: models.ChangeAdded, DetectedAt: base, User: models.User{PK: "1"}},
		{TargetAccount: "demo", ListType: models.ListFollowers, ChangeType: models.ChangeRemoved, DetectedAt: base.AddDate(0, 0, 1), User: models.User{PK: "2"}},
		{TargetAccount: "other", ListType: models.ListFollowers, ChangeType: models.ChangeAdded, DetectedAt: base.AddDate(0, 0, 2), User: models.User{PK: "3"}},
	}
	n, err := m.StoreChanges(ctx, events)
	if err != nil || n != 3 {
		t.Fatalf("StoreChanges = (%d, %v), want (3, nil)", n, err)
	}

	out, err := m.ChangesSince(ctx, ChangeFilter{TargetAccount: "demo"})
	if err != nil {
		t.Fatalf("ChangesSince: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 events for demo, got %d", len(out))
	}
	if !out[0].DetectedAt.After(out[1].DetectedAt) {
		t.Error("changes not newest first")
	}

	since := base.AddDate(0, 0, 1)
	until := base.AddDate(0, 0, 2)
	out, _ = m.ChangesSince(ctx, ChangeFilter{Since: &since, Until: &until})
	if len(out) != 1 || out[0].User.PK != "2" {
		t.Errorf("windowed changes = %+v, want only pk 2", out)
	}

	out, _ = m.ChangesSince(ctx, ChangeFilter{Limit: 1})
	if len(out) != 1 || out[0].User.PK != "3" {
		t.Errorf("limited changes = %+v, want newest only", out)
	}
}

func TestMemory_StoreChangesEmpty(t *testing.T) {
	m := NewMemory()
	n, err := m.StoreChanges(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("StoreChanges(nil) = (%d, %v), want (0, nil)", n, err)
	}
}
