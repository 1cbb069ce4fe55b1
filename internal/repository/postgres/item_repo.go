package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/jackc/pgx/v5"
)

// ItemRepo implements ItemRepository using PostgreSQL.
type ItemRepo struct{ db *DB }

// NewItemRepo constructs an item repository.
func NewItemRepo(db *DB) *ItemRepo { return &ItemRepo{db: db} }

// UpsertBatch writes all items in one transaction; any failure rolls back the whole batch.
func (r *ItemRepo) UpsertBatch(ctx context.Context, items []model.Item) (n int, err error) {
	const ups = `
INSERT INTO qb_items (qb_item_id, name, item_type, active, income_account_id, income_account_name, sync_token, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (qb_item_id) DO UPDATE SET
	name=EXCLUDED.name, item_type=EXCLUDED.item_type, active=EXCLUDED.active,
	income_account_id=EXCLUDED.income_account_id, income_account_name=EXCLUDED.income_account_name,
	sync_token=EXCLUDED.sync_token, updated_at=now()`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i, it := range items {
			_, err := tx.Exec(ctx, ups, it.QBItemID, it.Name, it.Type, it.Active,
				it.IncomeAccountID, it.IncomeAccountName, it.SyncToken)
			if err != nil {
				return fmt.Errorf("item[%d] %s: %w", i, it.QBItemID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Get returns a single item by QuickBooks id.
func (r *ItemRepo) Get(ctx context.Context, qbItemID string) (*model.Item, error) {
	const q = `
SELECT qb_item_id, name, item_type, active, income_account_id, income_account_name, sync_token, updated_at
FROM qb_items WHERE qb_item_id=$1`
	var it model.Item
	err := r.db.Pool.QueryRow(ctx, q, qbItemID).Scan(&it.QBItemID, &it.Name, &it.Type, &it.Active,
		&it.IncomeAccountID, &it.IncomeAccountName, &it.SyncToken, &it.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}
