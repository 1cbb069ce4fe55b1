// Package lock defines keyed mutual exclusion used to serialize token refreshes
// and writes to the same QuickBooks entity.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotObtained is returned when the lock could not be acquired before the context ended.
var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out leases on string keys.
type Locker interface {
	// Obtain blocks until the key is free or ctx is done. ttl bounds how long a lost holder keeps the key.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// RefreshKey is the lock key for token refreshes of one connection.
func RefreshKey(connectionID string) string { return "qbo:refresh:" + connectionID }

// EntityKey is the lock key for writes to one remote entity.
func EntityKey(entityType, id string) string { return "qbo:entity:" + entityType + ":" + id }
