// Package storage provides persistent backends for suggestion entries.
//
// SQLiteStore is the default implementation using pure-Go SQLite
// (modernc.org/sqlite). MemoryStore keeps entries in process memory and is
// meant for ephemeral deployments and tests. Both satisfy suggest.Store.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/homestock/homestock/internal/suggest"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for last_used and created_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is a store the process owns: it can be pinged and closed.
type Backend interface {
	suggest.Store
	Pinger
	Close() error
}

var (
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*MemoryStore)(nil)
)

// Open returns the backend for driver ("sqlite" or "memory"). path is
// ignored by the memory driver.
func Open(driver, path string, opts ...Option) (Backend, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteStore(path, opts...)
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

// unavailable wraps a backend failure so callers can match both the
// sentinel and the underlying cause.
func unavailable(op string, err error) error {
	return fmt.Errorf("storage: %s: %w: %w", op, suggest.ErrStorageUnavailable, err)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
