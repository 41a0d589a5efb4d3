// Package kv defines the storage port for the marketplace: a narrow
// key/value + sorted-set interface with TTLs, conditional writes, and an
// all-or-nothing write batch. The store provides atomicity only per command
// and per batch — there are no multi-key read transactions, so invariants
// that span a read and a write (signature uniqueness, single-writer trade
// completion) must be built on SetNX.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("kv: store closed")

// Member is a sorted-set member with its score. Scores are epoch-millisecond
// timestamps throughout this codebase, giving chronological indexes.
type Member struct {
	Member string
	Score  int64
}

// Store is the storage port. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value at key, or ("", false, nil) when absent/expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key unconditionally. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key only if it does not exist. Returns true when the
	// write happened. This is the conditional-write primitive settlement
	// invariants are built on.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Incr atomically increments an integer counter, creating it at 1.
	// ttl applies only when the counter is created (fixed-window semantics).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// ZAdd adds or updates a member in a sorted set.
	ZAdd(ctx context.Context, key string, m Member) error

	// ZRem removes a member from a sorted set.
	ZRem(ctx context.Context, key, member string) error

	// ZRange returns members by ascending score in [start, stop] rank
	// positions (stop = -1 means "to the end"). rev reverses the order.
	ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]string, error)

	// ZCard returns the cardinality of a sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZCount returns the number of members with score >= min.
	ZCount(ctx context.Context, key string, min int64) (int64, error)

	// Pipeline starts a write batch applied atomically on Exec.
	Pipeline() Batch

	// Close releases the backing resources.
	Close() error
}

// Batch is an all-or-nothing group of writes. Reads used to build the batch
// are NOT part of any transaction; callers needing read-check-write atomicity
// must guard with SetNX first.
type Batch interface {
	Set(key, value string, ttl time.Duration)
	Del(key string)
	Incr(key string)
	ZAdd(key string, m Member)
	ZRem(key, member string)

	// Exec applies every queued write. On error nothing is applied.
	Exec(ctx context.Context) error
}
