// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides read access to the local users table for role checks.
type UserRepository interface {
	// GetByAuthID loads a user by the auth subject carried in the session token.
	GetByAuthID(ctx context.Context, authUserID uuid.UUID) (*model.User, error)
}
