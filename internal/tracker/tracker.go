package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"follower-archive/internal/diff"
	"follower-archive/internal/models"
	"follower-archive/internal/source"
	"follower-archive/internal/store"
)

// PartialWriteError reports that a snapshot was persisted but its change
// events were not. The capture for that (account, list_type) should be
// retried as a whole; other accounts are unaffected.
type PartialWriteError struct {
	TargetAccount string
	ListType      models.ListType
	SnapshotID    string
	Err           error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write for %s/%s: snapshot %s stored but changes failed: %v",
		e.TargetAccount, e.ListType, e.SnapshotID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Tracker captures follower/following snapshots for the configured
// accounts, diffs each list against its own prior snapshot, and persists
// the snapshot plus derived change events.
type Tracker struct {
	log      *slog.Logger
	store    store.Store
	client   source.Client
	accounts []string
	now      func() time.Time
}

func New(log *slog.Logger, st store.Store, client source.Client, accounts []string) *Tracker {
	return &Tracker{
		log:      log,
		store:    st,
		client:   client,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type listSummary struct {
	added   int
	removed int
}

// RunOnce captures every configured account sequentially (fetches share one
// upstream session and must not be parallelized). A failing account is
// skipped and reported; a fatal source error aborts the run since every
// remaining account would hit the same wall. Already-written snapshots are
// never affected by later failures.
func (t *Tracker) RunOnce(ctx context.Context) ([]models.CaptureSummary, error) {
	if len(t.accounts) == 0 {
		return nil, errors.New("no target accounts configured")
	}

	summaries := make([]models.CaptureSummary, 0, len(t.accounts))
	var errs []error

	for _, account := range t.accounts {
		select {
		case <-ctx.Done():
			return summaries, ctx.Err()
		default:
		}

		summary, err := t.collectAccount(ctx, account)
		if err != nil {
			errs = append(errs, err)
			t.log.Error("capture_failed", "account", account, "error", err)
			if source.IsFatal(err) {
				return summaries, errors.Join(errs...)
			}
			continue
		}

		summaries = append(summaries, summary)
		t.log.Info("capture_complete",
			"account", account,
			"followers_added", summary.FollowersAdded,
			"followers_removed", summary.FollowersRemoved,
			"following_added", summary.FollowingAdded,
			"following_removed", summary.FollowingRemoved,
		)
	}

	return summaries, errors.Join(errs...)
}

func (t *Tracker) collectAccount(ctx context.Context, account string) (models.CaptureSummary, error) {
	rels, err := t.client.FetchRelationships(ctx, account)
	if err != nil {
		return models.CaptureSummary{}, fmt.Errorf("fetch %s: %w", account, err)
	}

	// one instant stamps both lists of this run
	detectedAt := t.now()

	followers, err := t.processList(ctx, account, models.ListFollowers, rels.Followers, detectedAt)
	if err != nil {
		return models.CaptureSummary{}, err
	}

	following, err := t.processList(ctx, account, models.ListFollowing, rels.Following, detectedAt)
	if err != nil {
		return models.CaptureSummary{}, err
	}

	return models.CaptureSummary{
		TargetAccount:    account,
		FollowersAdded:   followers.added,
		FollowersRemoved: followers.removed,
		FollowingAdded:   following.added,
		FollowingRemoved: following.removed,
	}, nil
}

func (t *Tracker) processList(ctx context.Context, account string, listType models.ListType, current []models.User, detectedAt time.Time) (listSummary, error) {
	previous, err := t.store.LatestSnapshot(ctx, account, listType)
	if err != nil {
		return listSummary{}, fmt.Errorf("load prior snapshot %s/%s: %w", account, listType, err)
	}

	var previousUsers []models.User
	if previous != nil {
		previousUsers = previous.Users
	}

	added, removed := diff.Diff(previousUsers, current)
	events := diff.BuildChangeEvents(account, listType, added, removed, detectedAt)

	snapshotID, err := t.store.StoreSnapshot(ctx, account, listType, current, detectedAt)
	if err != nil {
		return listSummary{}, fmt.Errorf("store snapshot %s/%s: %w", account, listType, err)
	}

	if _, err := t.store.StoreChanges(ctx, events); err != nil {
		return listSummary{}, &PartialWriteError{
			TargetAccount: account,
			ListType:      listType,
			SnapshotID:    snapshotID,
			Err:           err,
		}
	}

	t.log.Info("list_processed",
		"account", account,
		"list_type", listType,
		"added", len(added),
		"removed", len(removed),
	)

	return listSummary{added: len(added), removed: len(removed)}, nil
}
