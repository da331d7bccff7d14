package models

import "time"

// ListType identifies which relationship list a snapshot or change belongs to.
type ListType string

const (
	ListFollowers ListType = "followers"
	ListFollowing ListType = "following"
)

// ChangeType marks whether a user entered or left a list.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
)

// User is one follower/following entry. PK is the sole identity key;
// username and full name are display-only and may change without
// affecting identity.
type User struct {
	PK         string `json:"pk"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	IsPrivate  *bool  `json:"is_private,omitempty"`
	IsVerified *bool  `json:"is_verified,omitempty"`
}

// Snapshot is one timestamped capture of an account's full list membership.
// Immutable once written.
type Snapshot struct {
	ID            string    `json:"id,omitempty"`
	TargetAccount string    `json:"target_account"`
	ListType      ListType  `json:"list_type"`
	Users         []User    `json:"users"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ChangeEvent records one user entering or leaving a list between two
// consecutive snapshots. DetectedAt equals the collected_at of the snapshot
// that first reflects the change.
type ChangeEvent struct {
	TargetAccount string     `json:"target_account"`
	ListType      ListType   `json:"list_type"`
	ChangeType    ChangeType `json:"change_type"`
	DetectedAt    time.Time  `json:"detected_at"`
	User          User       `json:"user"`
}

// CaptureSummary reports per-account counts from one capture run.
type CaptureSummary struct {
	TargetAccount    string `json:"target_account"`
	FollowersAdded   int    `json:"followers_added"`
	FollowersRemoved int    `json:"followers_removed"`
	FollowingAdded   int    `json:"following_added"`
	FollowingRemoved int    `json:"following_removed"`
}
