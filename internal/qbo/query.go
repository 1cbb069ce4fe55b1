package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/and161185/ovis-qbsync/internal/model"
)

// PageSize is the QuickBooks maximum for MAXRESULTS.
const PageSize = 1000

// BuildQuery renders one page of a query. start is 1-based.
func BuildQuery(entity, where string, start int) string {
	q := "SELECT * FROM " + entity
	if where != "" {
		q += " WHERE " + where
	}
	return fmt.Sprintf("%s ORDERBY Id STARTPOSITION %d MAXRESULTS %d", q, start, PageSize)
}

// SinceDate is the WHERE clause selecting transactions dated on or after day.
func SinceDate(day time.Time) string {
	return "TxnDate >= '" + day.Format(time.DateOnly) + "'"
}

type queryEnvelope struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
}

// QueryPages walks every page of entity, calling fn once per page in order.
// It stops after the first page shorter than PageSize and never reads totalCount.
func QueryPages[T any](ctx context.Context, d Doer, conn *model.Connection, entity, where string, fn func(page []T) error) error {
	for start := 1; ; start += PageSize {
		var env queryEnvelope
		q := url.Values{"query": {BuildQuery(entity, where, start)}}
		if err := d.Do(ctx, conn, http.MethodGet, "query", q, nil, &env); err != nil {
			return err
		}
		var page []T
		if raw, ok := env.QueryResponse[entity]; ok {
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("decode %s page at %d: %w", entity, start, err)
			}
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(page) < PageSize {
			return nil
		}
	}
}

// QueryAll collects every page of entity.
func QueryAll[T any](ctx context.Context, d Doer, conn *model.Connection, entity, where string) ([]T, error) {
	var all []T
	err := QueryPages(ctx, d, conn, entity, where, func(page []T) error {
		all = append(all, page...)
		return nil
	})
	return all, err
}
