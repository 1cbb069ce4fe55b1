package repository

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
)

// SyncLogRepository is append-only: there is no update or delete.
type SyncLogRepository interface {
	// Append stores one entry.
	Append(ctx context.Context, e *model.SyncLogEntry) error

	// Recent returns the newest entries first.
	Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error)
}
