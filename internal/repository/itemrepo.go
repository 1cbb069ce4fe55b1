package repository

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
)

// ItemRepository stores the QuickBooks Item -> income account mapping.
type ItemRepository interface {
	// UpsertBatch inserts or updates items atomically and returns the number written.
	UpsertBatch(ctx context.Context, items []model.Item) (int, error)

	// Get returns a single item by QuickBooks id.
	Get(ctx context.Context, qbItemID string) (*model.Item, error)
}
