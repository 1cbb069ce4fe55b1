package repository

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
)

// TransactionLineRepository stores the local cache of QuickBooks line items.
type TransactionLineRepository interface {
	// Upsert inserts or overwrites a line keyed by its composite id.
	Upsert(ctx context.Context, l *model.TransactionLine) error

	// Get returns a single line by composite id.
	Get(ctx context.Context, id string) (*model.TransactionLine, error)

	// UpdateCategory rewrites the reference, display name and cached SyncToken of a line.
	UpdateCategory(ctx context.Context, id, accountRef, category, syncToken string) error

	// DeleteAll clears the table for an administrative full refresh.
	DeleteAll(ctx context.Context) (int64, error)

	// List returns the most recent lines by transaction date. An empty kind matches every type.
	List(ctx context.Context, kind model.TxnType, limit int) ([]model.TransactionLine, error)
}
