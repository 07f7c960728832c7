package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Table stores opaque values with an optional expiration. A zero expires
// value never expires.
type Table interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expires time.Time) error
	Delete(ctx context.Context, key string) error
	// ScanExpired calls fn for every entry whose expiration is at or before
	// now. fn may delete the entry it is given.
	ScanExpired(ctx context.Context, now time.Time, fn func(key string, value []byte) error) error
	Count(ctx context.Context, prefix string) (int, error)
	Close() error
}

type entry struct {
	key   string
	value []byte
}

func expiresNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
