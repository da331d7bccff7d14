package reports

import (
	"context"
	"fmt"

	"follower-archive/internal/diff"
	"follower-archive/internal/models"
	"follower-archive/internal/store"
	"follower-archive/internal/timewindow"
)

// FollowBackGaps computes the pk-keyed asymmetry between the latest
// followers and following snapshots. Counts report full sizes; the user
// lists are sorted and truncated to limit.
func (s *Service) FollowBackGaps(ctx context.Context, account string, limit int) (FollowBackGaps, error) {
	gaps := FollowBackGaps{
		TargetAccount:       account,
		NotFollowingYouBack: GapBucket{Users: []models.User{}},
		YouDontFollowBack:   GapBucket{Users: []models.User{}},
	}

	followers, following, err := s.latestPair(ctx, account)
	if err != nil {
		return gaps, err
	}
	if followers == nil || following == nil {
		return gaps, nil
	}

	followerKeys := keySet(followers.Users)
	followingKeys := keySet(following.Users)

	var notBack, dontFollow []models.User
	for _, u := range following.Users {
		if _, ok := followerKeys[u.PK]; !ok {
			notBack = append(notBack, u)
		}
	}
	for _, u := range followers.Users {
		if _, ok := followingKeys[u.PK]; !ok {
			dontFollow = append(dontFollow, u)
		}
	}
	sortUsers(notBack)
	sortUsers(dontFollow)

	gaps.NotFollowingYouBack = GapBucket{Count: len(notBack), Users: truncateUsers(notBack, limit)}
	gaps.YouDontFollowBack = GapBucket{Count: len(dontFollow), Users: truncateUsers(dontFollow, limit)}
	if gaps.NotFollowingYouBack.Users == nil {
		gaps.NotFollowingYouBack.Users = []models.User{}
	}
	if gaps.YouDontFollowBack.Users == nil {
		gaps.YouDontFollowBack.Users = []models.User{}
	}

	return gaps, nil
}

// RelationshipBreakdown classifies the latest snapshots into mutual and
// one-directional buckets. mutual_ratio is mutual/followers rounded to four
// decimals, defined as 0.0 when there are no followers.
func (s *Service) RelationshipBreakdown(ctx context.Context, account string, limit int) (RelationshipBreakdown, error) {
	bd := RelationshipBreakdown{
		TargetAccount: account,
		Mutual:        BreakdownBucket{Users: []models.User{}},
		OnlyFollowers: BreakdownBucket{Users: []models.User{}},
		OnlyFollowing: BreakdownBucket{Users: []models.User{}},
	}

	followers, following, err := s.latestPair(ctx, account)
	if err != nil {
		return bd, err
	}

	var followerUsers, followingUsers []models.User
	if followers != nil {
		followerUsers = followers.Users
	}
	if following != nil {
		followingUsers = following.Users
	}
	bd.FollowersTotal = len(followerUsers)
	bd.FollowingTotal = len(followingUsers)

	followerKeys := keySet(followerUsers)
	followingKeys := keySet(followingUsers)

	var mutual, onlyFollowers, onlyFollowing []models.User
	for _, u := range followerUsers {
		if _, ok := followingKeys[u.PK]; ok {
			mutual = append(mutual, u)
		} else {
			onlyFollowers = append(onlyFollowers, u)
		}
	}
	for _, u := range followingUsers {
		if _, ok := followerKeys[u.PK]; !ok {
			onlyFollowing = append(onlyFollowing, u)
		}
	}
	sortUsers(mutual)
	sortUsers(onlyFollowers)
	sortUsers(onlyFollowing)

	bd.Mutual = bucket(mutual, limit)
	bd.OnlyFollowers = bucket(onlyFollowers, limit)
	bd.OnlyFollowing = bucket(onlyFollowing, limit)
	if bd.FollowersTotal > 0 {
		bd.MutualRatio = round4(float64(bd.Mutual.Total) / float64(bd.FollowersTotal))
	}

	return bd, nil
}

// CompareSnapshots diffs the snapshots closest to the window's boundaries
// for each list type. The diff is ephemeral; nothing is persisted.
func (s *Service) CompareSnapshots(ctx context.Context, account string, w timewindow.Window, limit int) (SnapshotComparison, error) {
	cmp := SnapshotComparison{TargetAccount: account}

	var err error
	cmp.Followers, err = s.compareList(ctx, account, models.ListFollowers, w, limit)
	if err != nil {
		return cmp, err
	}
	cmp.Following, err = s.compareList(ctx, account, models.ListFollowing, w, limit)
	return cmp, err
}

func (s *Service) compareList(ctx context.Context, account string, listType models.ListType, w timewindow.Window, limit int) (ListComparison, error) {
	lc := ListComparison{Added: []models.User{}, Removed: []models.User{}}

	baseline, err := s.store.SnapshotAt(ctx, account, listType, w.Start, store.Before)
	if err != nil {
		return lc, fmt.Errorf("baseline snapshot %s/%s: %w", account, listType, err)
	}
	if baseline == nil {
		baseline, err = s.store.SnapshotAt(ctx, account, listType, w.Start, store.After)
		if err != nil {
			return lc, fmt.Errorf("baseline snapshot %s/%s: %w", account, listType, err)
		}
	}

	current, err := s.store.SnapshotAt(ctx, account, listType, w.End, store.Before)
	if err != nil {
		return lc, fmt.Errorf("current snapshot %s/%s: %w", account, listType, err)
	}
	if current == nil {
		current, err = s.store.LatestSnapshot(ctx, account, listType)
		if err != nil {
			return lc, fmt.Errorf("current snapshot %s/%s: %w", account, listType, err)
		}
	}

	if baseline == nil || current == nil {
		return lc, nil
	}

	added, removed := diff.Diff(baseline.Users, current.Users)
	sortUsers(added)
	sortUsers(removed)

	lc.Available = true
	lc.Baseline = &SnapshotRef{CollectedAt: baseline.CollectedAt, Count: len(baseline.Users)}
	lc.Current = &SnapshotRef{CollectedAt: current.CollectedAt, Count: len(current.Users)}
	lc.AddedCount = len(added)
	lc.RemovedCount = len(removed)
	lc.Added = truncateUsers(added, limit)
	lc.Removed = truncateUsers(removed, limit)
	if lc.Added == nil {
		lc.Added = []models.User{}
	}
	if lc.Removed == nil {
		lc.Removed = []models.User{}
	}

	return lc, nil
}

// SnapshotHistory returns the most recent limit snapshots per list type
// within the window, each reduced to timestamp and size. The followers
// series also carries sanitized member lists.
func (s *Service) SnapshotHistory(ctx context.Context, account string, w timewindow.Window, limit int) (SnapshotHistory, error) {
	hist := SnapshotHistory{
		TargetAccount: account,
		Followers:     []FollowerHistoryPoint{},
		Following:     []HistoryPoint{},
	}

	filter := store.SnapshotFilter{Start: &w.Start, End: &w.End, Limit: limit}

	followers, err := s.store.SnapshotHistory(ctx, account, models.ListFollowers, filter)
	if err != nil {
		return hist, fmt.Errorf("followers history: %w", err)
	}
	for _, snap := range followers {
		hist.Followers = append(hist.Followers, FollowerHistoryPoint{
			CollectedAt: snap.CollectedAt,
			Count:       len(snap.Users),
			Users:       sanitizeUsers(snap.Users),
		})
	}

	following, err := s.store.SnapshotHistory(ctx, account, models.ListFollowing, filter)
	if err != nil {
		return hist, fmt.Errorf("following history: %w", err)
	}
	for _, snap := range following {
		hist.Following = append(hist.Following, HistoryPoint{
			CollectedAt: snap.CollectedAt,
			Count:       len(snap.Users),
		})
	}

	return hist, nil
}

func (s *Service) latestPair(ctx context.Context, account string) (followers, following *models.Snapshot, err error) {
	followers, err = s.store.LatestSnapshot(ctx, account, models.ListFollowers)
	if err != nil {
		return nil, nil, fmt.Errorf("read followers snapshot: %w", err)
	}
	following, err = s.store.LatestSnapshot(ctx, account, models.ListFollowing)
	if err != nil {
		return nil, nil, fmt.Errorf("read following snapshot: %w", err)
	}
	return followers, following, nil
}

func keySet(users []models.User) map[string]struct{} {
	keys := make(map[string]struct{}, len(users))
	for _, u := range users {
		keys[u.PK] = struct{}{}
	}
	return keys
}

func bucket(users []models.User, limit int) BreakdownBucket {
	sample := truncateUsers(users, limit)
	if sample == nil {
		sample = []models.User{}
	}
	return BreakdownBucket{Total: len(users), Users: sample}
}

// sanitizeUsers strips everything but identity and display fields.
func sanitizeUsers(users []models.User) []models.User {
	out := make([]models.User, len(users))
	for i, u := range users {
		out[i] = models.User{PK: u.PK, Username: u.Username, FullName: u.FullName}
	}
	return out
}
