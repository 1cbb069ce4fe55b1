package postgres

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// GetByAuthID selects a user by the auth subject id.
func (r *UserRepo) GetByAuthID(ctx context.Context, authUserID uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, auth_user_id, email, ovis_role
FROM users WHERE auth_user_id=$1`
	row := r.db.Pool.QueryRow(ctx, q, authUserID)
	var u model.User
	if err := row.Scan(&u.ID, &u.AuthUserID, &u.Email, &u.Role); err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
