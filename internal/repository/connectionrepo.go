package repository

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ConnectionRepository persists the company-wide QuickBooks connection.
type ConnectionRepository interface {
	// GetActive returns the connection with status connected.
	GetActive(ctx context.Context) (*model.Connection, error)

	// Get returns a connection by id regardless of status.
	Get(ctx context.Context, id uuid.UUID) (*model.Connection, error)

	// Create stores a new connected row, demoting any previously connected row to expired.
	Create(ctx context.Context, c *model.Connection) error

	// UpdateTokens writes all four token fields in a single statement.
	UpdateTokens(ctx context.Context, id uuid.UUID, ts model.TokenSet) error

	// SetStatus changes the connection status.
	SetStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus) error

	// TouchLastSync stamps last_sync_at.
	TouchLastSync(ctx context.Context, id uuid.UUID) error
}
