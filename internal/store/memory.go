package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"follower-archive/internal/models"
)

// Memory is an in-process Store used by tests and USE_MEMORY_STORE runs.
// Reads see writes immediately; everything is copied on the way in and out
// so callers can't alias internal state.
type Memory struct {
	mu        sync.RWMutex
	snapshots []models.Snapshot
	changes   []models.ChangeEvent
	nextID    int
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) StoreSnapshot(_ context.Context, account string, listType models.ListType, users []models.User, collectedAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := strconv.Itoa(m.nextID)
	m.nextID++

	snap := models.Snapshot{
		ID:            id,
		TargetAccount: account,
		ListType:      listType,
		Users:         append([]models.User(nil), users...),
		CollectedAt:   collectedAt.UTC(),
	}
	m.snapshots = append(m.snapshots, snap)
	return id, nil
}

func (m *Memory) LatestSnapshot(_ context.Context, account string, listType models.ListType) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *models.Snapshot
	for i := range m.snapshots {
		s := &m.snapshots[i]
		if s.TargetAccount != account || s.ListType != listType {
			continue
		}
		if best == nil || s.CollectedAt.After(best.CollectedAt) {
			best = s
		}
	}
	return copySnapshot(best), nil
}

func (m *Memory) SnapshotAt(_ context.Context, account string, listType models.ListType, moment time.Time, dir Direction) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *models.Snapshot
	for i := range m.snapshots {
		s := &m.snapshots[i]
		if s.TargetAccount != account || s.ListType != listType {
			continue
		}
		switch dir {
		case After:
			if s.CollectedAt.Before(moment) {
				continue
			}
			if best == nil || s.CollectedAt.Before(best.CollectedAt) {
				best = s
			}
		default:
			if s.CollectedAt.After(moment) {
				continue
			}
			if best == nil || s.CollectedAt.After(best.CollectedAt) {
				best = s
			}
		}
	}
	return copySnapshot(best), nil
}

func (m *Memory) SnapshotHistory(_ context.Context, account string, listType models.ListType, filter SnapshotFilter) ([]models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Snapshot, 0)
	for i := range m.snapshots {
		s := m.snapshots[i]
		if s.TargetAccount != account || s.ListType != listType {
			continue
		}
		if filter.Start != nil && s.CollectedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && !s.CollectedAt.Before(*filter.End) {
			continue
		}
		s.Users = append([]models.User(nil), s.Users...)
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) StoreChanges(_ context.Context, events []models.ChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		ev.DetectedAt = ev.DetectedAt.UTC()
		m.changes = append(m.changes, ev)
	}
	return len(events), nil
}

func (m *Memory) ChangesSince(_ context.Context, filter ChangeFilter) ([]models.ChangeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChangeEvent, 0)
	for _, ev := range m.changes {
		if filter.TargetAccount != "" && ev.TargetAccount != filter.TargetAccount {
			continue
		}
		if filter.Since != nil && ev.DetectedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !ev.DetectedAt.Before(*filter.Until) {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func copySnapshot(s *models.Snapshot) *models.Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Users = append([]models.User(nil), s.Users...)
	return &out
}
