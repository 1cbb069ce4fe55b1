package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestInTx_CommitAndRollback(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, db.inTx(ctx, func(pgx.Tx) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")
	require.ErrorIs(t, db.inTx(ctx, func(pgx.Tx) error { return boom }), boom)

	mock.ExpectBegin().WillReturnError(errors.New("no tx"))
	require.Error(t, db.inTx(ctx, func(pgx.Tx) error { t.Fatal("fn must not run"); return nil }))

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit-fail"))
	require.Error(t, db.inTx(ctx, func(pgx.Tx) error { return nil }))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorHelpers(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(nil))
	require.True(t, isNoRows(pgx.ErrNoRows))
	require.False(t, isNoRows(errors.New("x")))
}
