package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenSealer encrypts tokens before they reach the table. Implemented by *crypto.Sealer.
type TokenSealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// ConnectionRepo implements ConnectionRepository using PostgreSQL.
// Tokens are sealed with the connection id as associated data.
type ConnectionRepo struct {
	db     *DB
	sealer TokenSealer
}

// NewConnectionRepo constructs a connection repository.
func NewConnectionRepo(db *DB, sealer TokenSealer) *ConnectionRepo {
	return &ConnectionRepo{db: db, sealer: sealer}
}

const connectionCols = `id, realm_id, access_token, refresh_token, access_token_expires_at,
refresh_token_expires_at, status, connected_by, last_sync_at, created_at, updated_at`

// GetActive returns the single connected row.
func (r *ConnectionRepo) GetActive(ctx context.Context) (*model.Connection, error) {
	q := `SELECT ` + connectionCols + ` FROM qb_connections WHERE status='connected'`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q))
}

// Get returns a connection by id.
func (r *ConnectionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	q := `SELECT ` + connectionCols + ` FROM qb_connections WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// Create demotes any connected row and inserts the new one in one transaction.
func (r *ConnectionRepo) Create(ctx context.Context, c *model.Connection) error {
	if c.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		c.ID = id
	}
	access, refresh, err := r.sealPair(c.ID, c.AccessToken, c.RefreshToken)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = model.ConnectionConnected
	}

	const demote = `UPDATE qb_connections SET status='expired', updated_at=now() WHERE status='connected'`
	const ins = `
INSERT INTO qb_connections (id, realm_id, access_token, refresh_token, access_token_expires_at,
	refresh_token_expires_at, status, connected_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, demote); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, ins, c.ID, c.RealmID, access, refresh,
			c.AccessTokenExpiresAt, c.RefreshTokenExpiresAt, string(c.Status),
			uuid.NullUUID{UUID: c.ConnectedBy, Valid: c.ConnectedBy != uuid.Nil})
		return err
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateTokens writes access/refresh tokens and both expiries in one statement.
func (r *ConnectionRepo) UpdateTokens(ctx context.Context, id uuid.UUID, ts model.TokenSet) error {
	access, refresh, err := r.sealPair(id, ts.AccessToken, ts.RefreshToken)
	if err != nil {
		return err
	}
	const q = `
UPDATE qb_connections
SET access_token=$2, refresh_token=$3, access_token_expires_at=$4, refresh_token_expires_at=$5, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, access, refresh, ts.AccessTokenExpiresAt, ts.RefreshTokenExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetStatus changes the status of a connection.
func (r *ConnectionRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus) error {
	const q = `UPDATE qb_connections SET status=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchLastSync stamps last_sync_at with the current time.
func (r *ConnectionRepo) TouchLastSync(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE qb_connections SET last_sync_at=now() WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

func (r *ConnectionRepo) scanOne(row pgx.Row) (*model.Connection, error) {
	var (
		c               model.Connection
		access, refresh []byte
		status          string
		connectedBy     uuid.NullUUID
		lastSync        *time.Time
	)
	err := row.Scan(&c.ID, &c.RealmID, &access, &refresh, &c.AccessTokenExpiresAt,
		&c.RefreshTokenExpiresAt, &status, &connectedBy, &lastSync, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	c.Status = model.ConnectionStatus(status)
	if connectedBy.Valid {
		c.ConnectedBy = connectedBy.UUID
	}
	c.LastSyncAt = lastSync

	aad := c.ID.Bytes()
	at, err := r.sealer.Open(access, aad)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	rt, err := r.sealer.Open(refresh, aad)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	c.AccessToken, c.RefreshToken = string(at), string(rt)
	return &c, nil
}

func (r *ConnectionRepo) sealPair(id uuid.UUID, access, refresh string) ([]byte, []byte, error) {
	aad := id.Bytes()
	a, err := r.sealer.Seal([]byte(access), aad)
	if err != nil {
		return nil, nil, fmt.Errorf("seal access token: %w", err)
	}
	b, err := r.sealer.Seal([]byte(refresh), aad)
	if err != nil {
		return nil, nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return a, b, nil
}
