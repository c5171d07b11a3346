package otp

import (
	"context"
	"time"
)

// Store persists records. It holds no policy; every call that depends on
// liveness receives now from the caller.
type Store interface {
	// InvalidateLive tombstones every live record for the pair and returns
	// how many were touched. It must be durable before it returns.
	InvalidateLive(ctx context.Context, email, purpose string, now time.Time) (int64, error)

	Insert(ctx context.Context, rec *Record) error

	// FindLive returns nil, nil when no live record matches.
	FindLive(ctx context.Context, email, code, purpose string, now time.Time) (*Record, error)

	// MarkUsed consumes rec only if it is still live. It returns false when
	// another caller got there first or the record expired in between.
	MarkUsed(ctx context.Context, rec *Record, now time.Time) (bool, error)

	FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]Record, error)

	Delete(ctx context.Context, rec *Record) (bool, error)
}

// LiveSwapper is implemented by stores that can invalidate the live records
// for rec's pair and insert rec as one atomic step.
type LiveSwapper interface {
	SwapLive(ctx context.Context, rec *Record, now time.Time) (int64, error)
}
