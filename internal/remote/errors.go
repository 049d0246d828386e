package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind tells the executor how to treat a failed call.
type ErrorKind int

const (
	// KindTransient failures may succeed on retry.
	KindTransient ErrorKind = iota
	// KindClient failures are caused by the request itself and are never retried.
	KindClient
	// KindConnection means the store could not be reached at all.
	KindConnection
	// KindCancelled means the call was aborted by cancellation.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClient:
		return "client"
	case KindConnection:
		return "connection"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrInvalidStore = errors.New("remote: store identity missing")
)

// Error is a classified failure produced by a store adapter.
type Error struct {
	Kind ErrorKind
	Op   string // list, upload, delete
	Key  string // identity or document id, may be empty
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s error: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a classification.
func NewError(kind ErrorKind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// Transient, Client and Connection are shorthands for NewError.
func Transient(op, key string, err error) *Error  { return NewError(KindTransient, op, key, err) }
func Client(op, key string, err error) *Error     { return NewError(KindClient, op, key, err) }
func Connection(op, key string, err error) *Error { return NewError(KindConnection, op, key, err) }

// KindOf returns the classification carried by err. Context cancellation is
// reported as KindCancelled even when unwrapped; any other unclassified error
// is treated as transient.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTransient
}

// IsRetryable reports whether another attempt may succeed. Connection
// failures consume attempts like transient ones; the executor's breaker is
// what stops a dead store from being retried action by action.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindConnection:
		return true
	default:
		return false
	}
}
