package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/lock"
	"github.com/and161185/ovis-qbsync/internal/metrics"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/qbo"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"go.uber.org/zap"
)

const entityLockTTL = 30 * time.Second

// RecategorizeService writes a new account (or item) reference back to QuickBooks.
type RecategorizeService interface {
	// Recategorize changes one line's reference remotely, then locally.
	Recategorize(ctx context.Context, lineID, accountID, accountName string) (model.RecategorizeResult, error)
}

type RecategorizeServiceImpl struct {
	conns   ConnectionService
	api     qbo.Doer
	lines   repository.TransactionLineRepository
	locks   lock.Locker
	synclog SyncLogService
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRecategorizeService constructs RecategorizeService. m may be nil.
func NewRecategorizeService(conns ConnectionService, api qbo.Doer, lines repository.TransactionLineRepository,
	locks lock.Locker, synclog SyncLogService, log *zap.Logger, m *metrics.Metrics) *RecategorizeServiceImpl {
	return &RecategorizeServiceImpl{
		conns: conns, api: api, lines: lines, locks: locks,
		synclog: synclog, log: log, metrics: m,
	}
}

// Recategorize reads the full entity, swaps the reference on the matching line and
// posts it back with the SyncToken just read. A stale token yields errs.ErrVersionConflict
// and leaves the local row untouched.
func (s *RecategorizeServiceImpl) Recategorize(ctx context.Context, lineID, accountID, accountName string) (model.RecategorizeResult, error) {
	if lineID == "" || accountID == "" {
		return model.RecategorizeResult{}, fmt.Errorf("%w: lineId/accountId", errs.ErrInvalidInput)
	}
	line, err := s.lines.Get(ctx, lineID)
	if err != nil {
		return model.RecategorizeResult{}, err
	}

	conn, err := s.conns.GetActiveConnection(ctx)
	if err != nil {
		return model.RecategorizeResult{}, err
	}
	if conn, err = s.conns.EnsureFreshToken(ctx, conn); err != nil {
		return model.RecategorizeResult{}, err
	}

	lease, err := s.locks.Obtain(ctx, lock.EntityKey(line.TxnType.Token(), line.QBEntityID), entityLockTTL)
	if err != nil {
		return model.RecategorizeResult{}, fmt.Errorf("entity lock: %w", err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Warn("entity lock release failed", zap.Error(rerr))
		}
	}()

	token, err := s.write(ctx, conn, line, qbo.Ref{Value: accountID, Name: accountName})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, errs.ErrVersionConflict) {
			outcome = "conflict"
		}
		s.metrics.Recategorized(outcome)
		s.synclog.Record(ctx, syncTypeFor(line.TxnType), model.DirectionOutbound, model.SyncFailed,
			RecordOptions{EntityID: line.ID, QBEntityID: line.QBEntityID, ErrorMessage: err.Error()})
		return model.RecategorizeResult{}, fmt.Errorf("recategorize %s: %w", lineID, rejectedToken(err))
	}

	if err := s.lines.UpdateCategory(ctx, line.ID, accountID, accountName, token); err != nil {
		// remote already changed; the next import reconciles the local row
		s.log.Error("local category update failed", zap.String("line", line.ID), zap.Error(err))
		return model.RecategorizeResult{}, fmt.Errorf("update local line: %w", err)
	}

	s.metrics.Recategorized("ok")
	s.synclog.Record(ctx, syncTypeFor(line.TxnType), model.DirectionOutbound, model.SyncSuccess,
		RecordOptions{EntityID: line.ID, QBEntityID: line.QBEntityID})
	s.log.Info("line recategorized",
		zap.String("line", line.ID),
		zap.String("account", accountID),
		zap.String("sync_token", token),
	)
	return model.RecategorizeResult{LineID: line.ID, SyncToken: token}, nil
}

// write performs the read-modify-write and returns the SyncToken of the updated entity.
func (s *RecategorizeServiceImpl) write(ctx context.Context, conn *model.Connection, line *model.TransactionLine, ref qbo.Ref) (string, error) {
	ent, err := qbo.GetEntity(ctx, s.api, conn, line.TxnType, line.QBEntityID)
	if err != nil {
		return "", err
	}
	loc := qbo.LineLocator{LineNum: line.QBLineNum, LineID: line.QBLineID, Kind: line.QBLineIDKind}
	if err := ent.SetLineRef(line.TxnType, loc, ref); err != nil {
		return "", err
	}
	updated, err := qbo.UpdateEntity(ctx, s.api, conn, line.TxnType, ent)
	if err != nil {
		return "", err
	}
	return updated.SyncToken(), nil
}
