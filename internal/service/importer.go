package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/metrics"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/qbo"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"go.uber.org/zap"
)

// ImportRequest selects the window of an import run.
type ImportRequest struct {
	StartDate *time.Time // nil means January 1 of the previous year
	FullSync  bool       // clear local lines before importing
}

// ImportService pulls QuickBooks data into the local cache.
type ImportService interface {
	// ImportTransactions imports every qualifying line dated on or after the start date.
	ImportTransactions(ctx context.Context, req ImportRequest) (model.ImportResult, error)
	// SyncItems refreshes the local Item -> income account mapping.
	SyncItems(ctx context.Context) (int, error)
	// ResolveIncomeAccount returns the item holding the income account for itemID.
	ResolveIncomeAccount(ctx context.Context, itemID string) (*model.Item, error)
	// ListLines returns cached lines, newest first, optionally limited to one transaction type.
	ListLines(ctx context.Context, txnType string, limit int) ([]model.ResolvedLine, error)
}

type ImportServiceImpl struct {
	conns   ConnectionService
	api     qbo.Doer
	lines   repository.TransactionLineRepository
	items   repository.ItemRepository
	synclog SyncLogService
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewImportService constructs ImportService. m may be nil.
func NewImportService(conns ConnectionService, api qbo.Doer, lines repository.TransactionLineRepository,
	items repository.ItemRepository, synclog SyncLogService, log *zap.Logger, m *metrics.Metrics) *ImportServiceImpl {
	return &ImportServiceImpl{
		conns: conns, api: api, lines: lines, items: items,
		synclog: synclog, log: log, metrics: m, now: time.Now,
	}
}

// DefaultStartDate is January 1 of the year before now.
func DefaultStartDate(now time.Time) time.Time {
	return time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// connect returns the active connection with a usable access token.
func (s *ImportServiceImpl) connect(ctx context.Context) (*model.Connection, error) {
	conn, err := s.conns.GetActiveConnection(ctx)
	if err != nil {
		return nil, err
	}
	return s.conns.EnsureFreshToken(ctx, conn)
}

// ImportTransactions walks the types in model.ImportOrder. A failing type is logged and
// counted and the next type still runs; lines already written stay written.
func (s *ImportServiceImpl) ImportTransactions(ctx context.Context, req ImportRequest) (model.ImportResult, error) {
	res := model.ImportResult{PerType: make(map[model.TxnType]model.TypeResult, len(model.ImportOrder))}
	if req.StartDate != nil {
		d := req.StartDate.UTC()
		res.StartDate = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		res.StartDate = DefaultStartDate(s.now())
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return res, err
	}

	if req.FullSync {
		n, err := s.lines.DeleteAll(ctx)
		if err != nil {
			return res, fmt.Errorf("clear lines: %w", err)
		}
		res.Cleared = n
		s.log.Info("cleared local lines for full sync", zap.Int64("rows", n))
	}

	for _, kind := range model.ImportOrder {
		tr, err := s.importType(ctx, conn, kind, res.StartDate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			tr.Failed = true
			tr.Errors++
			s.log.Error("import type failed", zap.String("type", string(kind)), zap.Error(err))
			s.synclog.Record(ctx, syncTypeFor(kind), model.DirectionInbound, model.SyncFailed,
				RecordOptions{ErrorMessage: fmt.Sprintf("%s: %v", kind, err)})
			if errors.Is(err, errs.ErrUnauthorized) {
				// the remaining types would be rejected with the same token
				res.PerType[kind] = tr
				res.Errors += tr.Errors
				return res, rejectedToken(err)
			}
		}
		res.PerType[kind] = tr
		res.Imported += tr.Imported
		res.Errors += tr.Errors
	}

	if res.Errors == 0 {
		if err := s.conns.MarkSynced(ctx, conn.ID); err != nil {
			s.log.Warn("stamp last sync", zap.Error(err))
		}
		s.synclog.Record(ctx, model.SyncExpense, model.DirectionInbound, model.SyncSuccess, RecordOptions{})
	}
	s.log.Info("import finished",
		zap.Time("start_date", res.StartDate),
		zap.Int("imported", res.Imported),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

func (s *ImportServiceImpl) importType(ctx context.Context, conn *model.Connection, kind model.TxnType, since time.Time) (model.TypeResult, error) {
	var tr model.TypeResult
	err := qbo.QueryTransactions(ctx, s.api, conn, kind, since, func(page []qbo.Transaction) error {
		for _, tx := range page {
			s.importOne(ctx, tx, &tr)
		}
		return nil
	})
	return tr, err
}

func (s *ImportServiceImpl) importOne(ctx context.Context, tx qbo.Transaction, tr *model.TypeResult) {
	kind := string(tx.Kind())
	lines, err := FlattenTransaction(tx)
	if err != nil {
		tr.Errors++
		s.metrics.LineFailed(kind)
		s.log.Warn("skip transaction", zap.Error(err))
		return
	}
	for i := range lines {
		l := &lines[i]
		if err := s.lines.Upsert(ctx, l); err != nil {
			tr.Errors++
			s.metrics.LineFailed(kind)
			s.log.Warn("line upsert failed", zap.String("line", l.ID), zap.Error(err))
			s.synclog.Record(ctx, syncTypeFor(l.TxnType), model.DirectionInbound, model.SyncFailed,
				RecordOptions{EntityID: l.ID, QBEntityID: l.QBEntityID, ErrorMessage: err.Error()})
			continue
		}
		tr.Imported++
		s.metrics.LineImported(kind)
	}
}

// SyncItems stores every remote Item in one transaction.
func (s *ImportServiceImpl) SyncItems(ctx context.Context) (int, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return 0, err
	}
	remote, err := qbo.QueryAll[qbo.Item](ctx, s.api, conn, "Item", "")
	if err != nil {
		s.synclog.Record(ctx, model.SyncItem, model.DirectionInbound, model.SyncFailed,
			RecordOptions{ErrorMessage: err.Error()})
		return 0, fmt.Errorf("query items: %w", rejectedToken(err))
	}

	items := make([]model.Item, 0, len(remote))
	for _, it := range remote {
		m := model.Item{
			QBItemID:  it.ID,
			Name:      it.Name,
			Type:      it.Type,
			Active:    it.Active,
			SyncToken: it.SyncToken,
		}
		if it.IncomeAccountRef != nil {
			m.IncomeAccountID = it.IncomeAccountRef.Value
			m.IncomeAccountName = it.IncomeAccountRef.Name
		}
		items = append(items, m)
	}

	n, err := s.items.UpsertBatch(ctx, items)
	if err != nil {
		s.synclog.Record(ctx, model.SyncItem, model.DirectionInbound, model.SyncFailed,
			RecordOptions{ErrorMessage: err.Error()})
		return 0, fmt.Errorf("store items: %w", err)
	}
	s.synclog.Record(ctx, model.SyncItem, model.DirectionInbound, model.SyncSuccess, RecordOptions{})
	s.log.Info("items synced", zap.Int("count", n))
	return n, nil
}

func (s *ImportServiceImpl) ResolveIncomeAccount(ctx context.Context, itemID string) (*model.Item, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: itemId", errs.ErrInvalidInput)
	}
	return s.items.Get(ctx, itemID)
}

// ListLines clamps limit like the sync log and resolves Invoice and SalesReceipt lines to the
// income account of their Item. Lines whose Item was never synced keep empty income fields.
func (s *ImportServiceImpl) ListLines(ctx context.Context, txnType string, limit int) ([]model.ResolvedLine, error) {
	var kind model.TxnType
	if txnType != "" {
		t, ok := model.ParseTxnType(txnType)
		if !ok {
			return nil, fmt.Errorf("%w: unknown transaction type %q", errs.ErrInvalidInput, txnType)
		}
		kind = t
	}
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}

	lines, err := s.lines.List(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}

	items := make(map[string]*model.Item)
	out := make([]model.ResolvedLine, 0, len(lines))
	for _, l := range lines {
		rl := model.ResolvedLine{TransactionLine: l}
		if l.TxnType.ReferencesItems() && l.AccountRef != "" {
			it, seen := items[l.AccountRef]
			if !seen {
				it, err = s.ResolveIncomeAccount(ctx, l.AccountRef)
				switch {
				case errors.Is(err, errs.ErrNotFound):
					it = nil
				case err != nil:
					return nil, fmt.Errorf("resolve item %s: %w", l.AccountRef, err)
				}
				items[l.AccountRef] = it
			}
			if it != nil {
				rl.IncomeAccountID = it.IncomeAccountID
				rl.IncomeAccountName = it.IncomeAccountName
			}
		}
		out = append(out, rl)
	}
	return out, nil
}
