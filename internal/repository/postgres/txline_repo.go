package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/jackc/pgx/v5"
)

// TxLineRepo implements TransactionLineRepository using PostgreSQL.
type TxLineRepo struct{ db *DB }

// NewTxLineRepo constructs a transaction line repository.
func NewTxLineRepo(db *DB) *TxLineRepo { return &TxLineRepo{db: db} }

const txLineCols = `id, txn_type, txn_date, counterparty, account_ref, category, description,
amount, sync_token, qb_entity_id, qb_line_id, qb_line_id_kind, qb_line_num, imported_at, updated_at`

// amountScale matches the numeric(14, 2) amount column.
const amountScale = 2

// Upsert inserts the line or overwrites every field of the existing row with the same id.
// Amounts with more than two decimal places are rejected rather than rounded.
func (r *TxLineRepo) Upsert(ctx context.Context, l *model.TransactionLine) error {
	if !l.Amount.Equal(l.Amount.Round(amountScale)) {
		return fmt.Errorf("%w: amount %s of %s has more than %d decimal places",
			errs.ErrInvalidInput, l.Amount, l.ID, amountScale)
	}
	kind := l.QBLineIDKind
	if kind == "" {
		kind = model.LineIDID
	}
	const q = `
INSERT INTO qb_transaction_lines (id, txn_type, txn_date, counterparty, account_ref, category, description,
	amount, sync_token, qb_entity_id, qb_line_id, qb_line_id_kind, qb_line_num, imported_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
ON CONFLICT (id) DO UPDATE SET
	txn_type=EXCLUDED.txn_type, txn_date=EXCLUDED.txn_date, counterparty=EXCLUDED.counterparty,
	account_ref=EXCLUDED.account_ref, category=EXCLUDED.category, description=EXCLUDED.description,
	amount=EXCLUDED.amount, sync_token=EXCLUDED.sync_token, qb_entity_id=EXCLUDED.qb_entity_id,
	qb_line_id=EXCLUDED.qb_line_id, qb_line_id_kind=EXCLUDED.qb_line_id_kind,
	qb_line_num=EXCLUDED.qb_line_num, updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, l.ID, string(l.TxnType), l.TxnDate, l.Counterparty, l.AccountRef,
		l.Category, l.Description, l.Amount.StringFixed(amountScale), l.SyncToken, l.QBEntityID, l.QBLineID,
		string(kind), l.QBLineNum)
	return err
}

// Get returns a single line by composite id.
func (r *TxLineRepo) Get(ctx context.Context, id string) (*model.TransactionLine, error) {
	q := `SELECT ` + txLineCols + ` FROM qb_transaction_lines WHERE id=$1`
	l, err := scanTxLine(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// UpdateCategory rewrites the reference, display name and cached SyncToken of a line.
func (r *TxLineRepo) UpdateCategory(ctx context.Context, id, accountRef, category, syncToken string) error {
	const q = `
UPDATE qb_transaction_lines
SET account_ref=$2, category=$3, sync_token=$4, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, accountRef, category, syncToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteAll clears the table and returns the number of rows removed.
func (r *TxLineRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM qb_transaction_lines`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns up to limit lines of kind, newest transaction date first.
func (r *TxLineRepo) List(ctx context.Context, kind model.TxnType, limit int) ([]model.TransactionLine, error) {
	q := `SELECT ` + txLineCols + ` FROM qb_transaction_lines
		WHERE ($1 = '' OR txn_type = $1) ORDER BY txn_date DESC, id LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TransactionLine
	for rows.Next() {
		l, err := scanTxLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanTxLine(row pgx.Row) (*model.TransactionLine, error) {
	var (
		l     model.TransactionLine
		typ   string
		kind  string
		lnNum *int32
	)
	err := row.Scan(&l.ID, &typ, &l.TxnDate, &l.Counterparty, &l.AccountRef, &l.Category, &l.Description,
		&l.Amount, &l.SyncToken, &l.QBEntityID, &l.QBLineID, &kind, &lnNum, &l.ImportedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.TxnType = model.TxnType(typ)
	l.QBLineIDKind = model.LineIDKind(kind)
	if lnNum != nil {
		n := int(*lnNum)
		l.QBLineNum = &n
	}
	return &l, nil
}
