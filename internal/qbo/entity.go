package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
)

// Entity is a full remote entity kept as raw JSON fields, so a read-modify-write
// sends back every field QuickBooks returned, including ones this package does not model.
type Entity map[string]json.RawMessage

// SyncToken returns the entity's optimistic-concurrency token.
func (e Entity) SyncToken() string {
	var s string
	_ = json.Unmarshal(e["SyncToken"], &s)
	return s
}

// LineLocator identifies a line the way the importer keyed it.
type LineLocator struct {
	LineNum *int   // matched against LineNum when set
	LineID  string // matched against Id, or read as a position when Kind is index
	Kind    model.LineIDKind
}

// SetLineRef replaces the categorizing reference of one line: AccountRef for expense and
// journal lines, ItemRef for sales lines. Nothing else in the entity changes.
// A line that can no longer be found yields errs.ErrVersionConflict.
func (e Entity) SetLineRef(kind model.TxnType, loc LineLocator, ref Ref) error {
	var lines []map[string]json.RawMessage
	if err := json.Unmarshal(e["Line"], &lines); err != nil {
		return fmt.Errorf("decode Line: %w", err)
	}
	idx := findLine(lines, loc)
	if idx < 0 {
		return fmt.Errorf("%w: line %s not found on %s", errs.ErrVersionConflict, locString(loc), kind)
	}

	detailKey, refKey := DetailAccountBasedExpense, "AccountRef"
	switch kind {
	case model.TxnInvoice, model.TxnSalesReceipt:
		detailKey, refKey = DetailSalesItem, "ItemRef"
	case model.TxnJournalEntry:
		detailKey = DetailJournalEntry
	}

	raw, ok := lines[idx][detailKey]
	if !ok {
		return fmt.Errorf("%w: line %s has no %s", errs.ErrVersionConflict, locString(loc), detailKey)
	}
	var detail map[string]json.RawMessage
	if err := json.Unmarshal(raw, &detail); err != nil {
		return fmt.Errorf("decode %s: %w", detailKey, err)
	}
	rb, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	detail[refKey] = rb
	if lines[idx][detailKey], err = json.Marshal(detail); err != nil {
		return err
	}
	e["Line"], err = json.Marshal(lines)
	return err
}

// findLine never falls back from one identifier kind to another: an Id that no longer
// exists is not reread as a position, which could select a sibling line.
func findLine(lines []map[string]json.RawMessage, loc LineLocator) int {
	if loc.LineNum != nil {
		for i, l := range lines {
			var n int
			if raw, ok := l["LineNum"]; ok && json.Unmarshal(raw, &n) == nil && n == *loc.LineNum {
				return i
			}
		}
		return -1
	}
	if loc.LineID == "" {
		return -1
	}
	if loc.Kind == model.LineIDIndex {
		n, err := strconv.Atoi(loc.LineID)
		if err != nil || n < 0 || n >= len(lines) {
			return -1
		}
		// the importer only keys by position when the line had neither LineNum nor Id
		if _, ok := lines[n]["LineNum"]; ok {
			return -1
		}
		if _, ok := lines[n]["Id"]; ok {
			return -1
		}
		return n
	}
	for i, l := range lines {
		var id string
		if raw, ok := l["Id"]; ok && json.Unmarshal(raw, &id) == nil && id == loc.LineID {
			return i
		}
	}
	return -1
}

func locString(loc LineLocator) string {
	if loc.LineNum != nil {
		return "LineNum " + strconv.Itoa(*loc.LineNum)
	}
	if loc.Kind == model.LineIDIndex {
		return "at position " + loc.LineID
	}
	return loc.LineID
}

// GetEntity reads one entity by id.
func GetEntity(ctx context.Context, d Doer, conn *model.Connection, kind model.TxnType, id string) (Entity, error) {
	var env map[string]json.RawMessage
	if err := d.Do(ctx, conn, http.MethodGet, kind.Token()+"/"+id, nil, nil, &env); err != nil {
		return nil, err
	}
	return unwrapEntity(env, kind)
}

// UpdateEntity sends a full update. QuickBooks rejects it when e's SyncToken is stale.
func UpdateEntity(ctx context.Context, d Doer, conn *model.Connection, kind model.TxnType, e Entity) (Entity, error) {
	var env map[string]json.RawMessage
	if err := d.Do(ctx, conn, http.MethodPost, kind.Token(), nil, e, &env); err != nil {
		return nil, err
	}
	return unwrapEntity(env, kind)
}

func unwrapEntity(env map[string]json.RawMessage, kind model.TxnType) (Entity, error) {
	raw, ok := env[string(kind)]
	if !ok {
		return nil, fmt.Errorf("response has no %s", kind)
	}
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return e, nil
}
