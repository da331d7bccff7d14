package store

import (
	"context"
	"time"

	"follower-archive/internal/models"
)

// Direction selects which side of a moment SnapshotAt searches.
type Direction string

const (
	Before Direction = "before" // nearest snapshot at or before the moment
	After  Direction = "after"  // nearest snapshot at or after the moment
)

// ChangeFilter narrows a ChangesSince read. Zero-value fields mean
// unfiltered; Limit <= 0 means no cap.
type ChangeFilter struct {
	TargetAccount string
	Since         *time.Time // inclusive
	Until         *time.Time // exclusive
	Limit         int
}

// SnapshotFilter narrows a SnapshotHistory read. Limit <= 0 means no cap.
type SnapshotFilter struct {
	Start *time.Time // inclusive
	End   *time.Time // exclusive
	Limit int
}

// Store is the persistence contract the capture orchestrator and analytics
// layer require: append-only snapshot/change writes and time- and
// account-filtered reads. Absence of data is a normal state; lookups return
// (nil, nil) rather than an error when nothing matches.
type Store interface {
	// StoreSnapshot appends an immutable snapshot and returns its id.
	StoreSnapshot(ctx context.Context, account string, listType models.ListType, users []models.User, collectedAt time.Time) (string, error)

	// LatestSnapshot returns the most recent snapshot for (account, listType).
	LatestSnapshot(ctx context.Context, account string, listType models.ListType) (*models.Snapshot, error)

	// SnapshotAt returns the snapshot nearest to moment on the given side.
	SnapshotAt(ctx context.Context, account string, listType models.ListType, moment time.Time, dir Direction) (*models.Snapshot, error)

	// SnapshotHistory returns matching snapshots, newest first.
	SnapshotHistory(ctx context.Context, account string, listType models.ListType, filter SnapshotFilter) ([]models.Snapshot, error)

	// StoreChanges appends change events and returns the count written.
	StoreChanges(ctx context.Context, events []models.ChangeEvent) (int, error)

	// ChangesSince returns matching change events, newest first.
	ChangesSince(ctx context.Context, filter ChangeFilter) ([]models.ChangeEvent, error)
}
