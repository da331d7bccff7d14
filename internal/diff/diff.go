package diff

import (
	"time"

	"follower-archive/internal/models"
)

// Diff compares two user lists keyed by pk and returns the users that
// entered (added) and left (removed) the list. Display fields never affect
// the outcome; a user whose username or full name changed is neither added
// nor removed. Order follows the input: added in current order, removed in
// previous order.
func Diff(previous, current []models.User) (added, removed []models.User) {
	prevKeys := make(map[string]struct{}, len(previous))
	for _, u := range previous {
		prevKeys[u.PK] = struct{}{}
	}
	currKeys := make(map[string]struct{}, len(current))
	for _, u := range current {
		currKeys[u.PK] = struct{}{}
	}

	added = make([]models.User, 0)
	for _, u := range current {
		if _, ok := prevKeys[u.PK]; !ok {
			added = append(added, u)
		}
	}

	removed = make([]models.User, 0)
	for _, u := range previous {
		if _, ok := currKeys[u.PK]; !ok {
			removed = append(removed, u)
		}
	}

	return added, removed
}

// BuildChangeEvents turns a diff into persistable change events: one per
// added user followed by one per removed user, stamped with detectedAt.
func BuildChangeEvents(account string, listType models.ListType, added, removed []models.User, detectedAt time.Time) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(added)+len(removed))
	for _, u := range added {
		events = append(events, models.ChangeEvent{
			TargetAccount: account,
			ListType:      listType,
			ChangeType:    models.ChangeAdded,
			DetectedAt:    detectedAt,
			User:          u,
		})
	}
	for _, u := range removed {
		events = append(events, models.ChangeEvent{
			TargetAccount: account,
			ListType:      listType,
			ChangeType:    models.ChangeRemoved,
			DetectedAt:    detectedAt,
			User:          u,
		})
	}
	return events
}
