package leetcode

import (
	"errors"
	"fmt"
	"time"

	"github.com/leetboard/statsync/internal/models"
)

// Kind classifies a failed stats lookup.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindTransient Kind = "transient"
	KindProtocol  Kind = "protocol"
)

var (
	ErrNotFound  = errors.New("leetcode user not found")
	ErrTransient = errors.New("leetcode temporarily unavailable")
	ErrProtocol  = errors.New("leetcode protocol error")
)

// FetchError is returned for every failed lookup.
type FetchError struct {
	Kind   Kind
	Handle string
	Status int // HTTP status when one was received
	Err    error

	// RetryAfter is the wait the provider asked for, if any.
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Handle, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Handle, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrProtocol:
		return e.Kind == KindProtocol
	}
	return false
}

// Retryable reports whether a retry within the same cycle may succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient
}

// RetryDelay lets retry.Do honour a Retry-After hint.
func (e *FetchError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// OutcomeKind maps the error kind onto the batch outcome taxonomy.
func (e *FetchError) OutcomeKind() models.OutcomeKind {
	switch e.Kind {
	case KindNotFound:
		return models.OutcomeNotFound
	case KindTransient:
		return models.OutcomeTransient
	default:
		return models.OutcomeProtocol
	}
}

func newError(kind Kind, handle string, status int, err error) *FetchError {
	return &FetchError{Kind: kind, Handle: handle, Status: status, Err: err}
}
