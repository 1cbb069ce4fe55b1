package service

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"go.uber.org/zap"
)

// SyncLogService records sync attempts. Recording never fails the caller.
type SyncLogService interface {
	// Record appends one entry; storage failures are logged and dropped.
	Record(ctx context.Context, typ model.SyncType, dir model.SyncDirection, status model.SyncStatus, opts RecordOptions)
	// Recent returns the newest entries first.
	Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error)
}

// RecordOptions carries the optional fields of an entry.
type RecordOptions struct {
	EntityID     string
	QBEntityID   string
	ErrorMessage string
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type SyncLogServiceImpl struct {
	repo repository.SyncLogRepository
	log  *zap.Logger
}

// NewSyncLogService constructs SyncLogService.
func NewSyncLogService(repo repository.SyncLogRepository, log *zap.Logger) *SyncLogServiceImpl {
	return &SyncLogServiceImpl{repo: repo, log: log}
}

// Record appends one entry with retry_count 0.
func (s *SyncLogServiceImpl) Record(ctx context.Context, typ model.SyncType, dir model.SyncDirection, status model.SyncStatus, opts RecordOptions) {
	e := &model.SyncLogEntry{
		SyncType:     typ,
		Direction:    dir,
		Status:       status,
		EntityID:     optional(opts.EntityID),
		QBEntityID:   optional(opts.QBEntityID),
		ErrorMessage: optional(opts.ErrorMessage),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Warn("sync log append failed",
			zap.String("type", string(typ)),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// Recent clamps limit to [1, 500]; 0 means 50.
func (s *SyncLogServiceImpl) Recent(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}
	return s.repo.Recent(ctx, limit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// syncTypeFor maps a transaction type onto the sync log taxonomy.
func syncTypeFor(t model.TxnType) model.SyncType {
	switch t {
	case model.TxnBill:
		return model.SyncBill
	case model.TxnInvoice:
		return model.SyncInvoice
	case model.TxnSalesReceipt:
		return model.SyncPayment
	default:
		return model.SyncExpense
	}
}
