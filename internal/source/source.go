package source

import (
	"context"
	"errors"
	"fmt"

	"follower-archive/internal/models"
)

// Relationships is one account's current follower and following membership
// as reported by the remote platform.
type Relationships struct {
	Followers []models.User
	Following []models.User
}

// Client is the capability the capture orchestrator needs from the remote
// platform. Implementations own their login/session/retry handling; callers
// only distinguish retryable from fatal failures.
type Client interface {
	Login(ctx context.Context) error
	FetchRelationships(ctx context.Context, account string) (Relationships, error)
}

// RetryableError marks a transient failure (network, rate limit, 5xx). The
// caller may retry the whole operation with backoff.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v (retryable)", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// FatalError marks a failure that requires operator intervention, typically
// an expired or rejected session. Retrying without reauthentication will
// not help.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v (reauthentication required)", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is (or wraps) a retryable source failure.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsFatal reports whether err is (or wraps) a fatal source failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
