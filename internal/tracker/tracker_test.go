package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"follower-archive/internal/logging"
	"follower-archive/internal/models"
	"follower-archive/internal/source"
	"follower-archive/internal/store"
)

type fakeClient struct {
	rels map[string]source.Relationships
	errs map[string]error
}

func (f *fakeClient) Login(ctx context.Context) error { return nil }

func (f *fakeClient) FetchRelationships(ctx context.Context, account string) (source.Relationships, error) {
	if err, ok := f.errs[account]; ok {
		return source.Relationships{}, err
	}
	return f.rels[account], nil
}

func u(pk, username string) models.User {
	return models.User{PK: pk, Username: username}
}

func newTracker(st store.Store, client source.Client, accounts ...string) *Tracker {
	t := New(logging.New("error"), st, client, accounts)
	t.now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }
	return t
}

func TestRunOnce_FirstCapture(t *testing.T) {
	st := store.NewMemory()
	client := &fakeClient{rels: map[string]source.Relationships{
		"demo": {
			Followers: []models.User{u("1", "alice"), u("2", "bob")},
			Following: []models.User{u("3", "carol")},
		},
	}}

	summaries, err := newTracker(st, client, "demo").RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}

	s := summaries[0]
	if s.FollowersAdded != 2 || s.FollowersRemoved != 0 || s.FollowingAdded != 1 || s.FollowingRemoved != 0 {
		t.Errorf("first capture summary = %+v, want no removed noise", s)
	}

	// snapshot and events share one detected_at
	snap, _ := st.LatestSnapshot(context.Background(), "demo", models.ListFollowers)
	events, _ := st.ChangesSince(context.Background(), store.ChangeFilter{TargetAccount: "demo"})
	if len(events) != 3 {
		t.Fatalf("expected 3 change events, got %d", len(events))
	}
	for _, ev := range events {
		if !ev.DetectedAt.Equal(snap.CollectedAt) {
			t.Errorf("event detected_at %v != snapshot collected_at %v", ev.DetectedAt, snap.CollectedAt)
		}
	}
}

func TestRunOnce_SecondCaptureDiffs(t *testing.T) {
	st := store.NewMemory()
	client := &fakeClient{rels: map[string]source.Relationships{
		"demo": {
			Followers: []models.User{u("1", "alice"), u("2", "bob")},
			Following: []models.User{},
		},
	}}
	tr := newTracker(st, client, "demo")

	if _, err := tr.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	client.rels["demo"] = source.Relationships{
		Followers: []models.User{u("2", "bob"), u("4", "dave")},
		Following: []models.User{},
	}
	tr.now = func() time.Time { return time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC) }

	summaries, err := tr.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	s := summaries[0]
	if s.FollowersAdded != 1 || s.FollowersRemoved != 1 {
		t.Errorf("second capture summary = %+v, want 1 added / 1 removed", s)
	}
}

func TestRunOnce_ContinuesPastFailedAccount(t *testing.T) {
	st := store.NewMemory()
	client := &fakeClient{
		rels: map[string]source.Relationships{
			"ok": {Followers: []models.User{u("1", "alice")}},
		},
		errs: map[string]error{
			"broken": &source.RetryableError{Op: "fetch", Err: errors.New("rate limited")},
		},
	}

	summaries, err := newTracker(st, client, "broken", "ok").RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(summaries) != 1 || summaries[0].TargetAccount != "ok" {
		t.Fatalf("expected ok account captured, got %+v", summaries)
	}
}

func TestRunOnce_FatalAborts(t *testing.T) {
	st := store.NewMemory()
	client := &fakeClient{
		rels: map[string]source.Relationships{
			"later": {Followers: []models.User{u("1", "alice")}},
		},
		errs: map[string]error{
			"first": &source.FatalError{Op: "fetch", Err: errors.New("session expired")},
		},
	}

	summaries, err := newTracker(st, client, "first", "later").RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if len(summaries) != 0 {
		t.Fatalf("fatal error must abort the run, got %+v", summaries)
	}

	snap, _ := st.LatestSnapshot(context.Background(), "later", models.ListFollowers)
	if snap != nil {
		t.Error("aborted run must not write later accounts")
	}
}

type failingChangeStore struct {
	store.Store
}

func (f *failingChangeStore) StoreChanges(ctx context.Context, events []models.ChangeEvent) (int, error) {
	return 0, errors.New("disk full")
}

func TestRunOnce_PartialWriteSurfaced(t *testing.T) {
	st := &failingChangeStore{Store: store.NewMemory()}
	client := &fakeClient{rels: map[string]source.Relationships{
		"demo": {Followers: []models.User{u("1", "alice")}},
	}}

	_, err := newTracker(st, client, "demo").RunOnce(context.Background())
	var pw *PartialWriteError
	if !errors.As(err, &pw) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if pw.TargetAccount != "demo" || pw.ListType != models.ListFollowers || pw.SnapshotID == "" {
		t.Errorf("partial write details incomplete: %+v", pw)
	}
}

func TestRunOnce_NoAccounts(t *testing.T) {
	_, err := newTracker(store.NewMemory(), &fakeClient{}).RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error with no accounts configured")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s := NewScheduler(logging.New("error"), nil, 3, 30)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before today's slot",
			time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC),
		},
		{
			"after today's slot",
			time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC),
		},
		{
			"exactly at the slot",
			time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.nextRun(tt.now); !got.Equal(tt.want) {
				t.Errorf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
