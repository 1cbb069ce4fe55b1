package postgres

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// SyncLogRepo implements SyncLogRepository using PostgreSQL.
type SyncLogRepo struct{ db *DB }

// NewSyncLogRepo constructs a sync log repository.
func NewSyncLogRepo(db *DB) *SyncLogRepo { return &SyncLogRepo{db: db} }

// Append inserts one entry. ID is assigned when empty.
func (r *SyncLogRepo) Append(ctx context.Context, e *model.SyncLogEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		e.ID = id
	}
	const q = `
INSERT INTO qb_sync_log (id, sync_type, direction, status, entity_id, qb_entity_id, error_message, retry_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q, e.ID, string(e.SyncType), string(e.Direction), string(e.Status),
		e.EntityID, e.QBEntityID, e.ErrorMessage, e.RetryCount)
	return err
}

// Recent returns up to limit entries, newest first.
func (r *SyncLogRepo) Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	const q = `
SELECT id, sync_type, direction, status, entity_id, qb_entity_id, error_message, retry_count, created_at
FROM qb_sync_log
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncLogEntry
	for rows.Next() {
		var (
			e                   model.SyncLogEntry
			typ, dir, status    string
			entityID, qbID, msg *string
			retries             int32
		)
		if err = rows.Scan(&e.ID, &typ, &dir, &status, &entityID, &qbID, &msg, &retries, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SyncType = model.SyncType(typ)
		e.Direction = model.SyncDirection(dir)
		e.Status = model.SyncStatus(status)
		e.EntityID, e.QBEntityID, e.ErrorMessage = entityID, qbID, msg
		e.RetryCount = int(retries)
		out = append(out, e)
	}
	return out, rows.Err()
}
