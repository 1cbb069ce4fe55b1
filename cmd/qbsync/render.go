package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/and161185/ovis-qbsync/internal/convert"
	"github.com/and161185/ovis-qbsync/internal/model"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	return t
}

func renderStatus(w io.Writer, s convert.ConnectionStatus) {
	t := newTable(w, "Field", "Value")
	t.Append([]string{"status", s.Status})
	t.Append([]string{"realm", s.RealmID})
	t.Append([]string{"access expires", deref(s.AccessTokenExpiresAt)})
	t.Append([]string{"refresh expires", deref(s.RefreshTokenExpires)})
	t.Append([]string{"last sync", deref(s.LastSyncAt)})
	t.Render()
}

// renderImport prints one row per transaction type in import order, then the totals.
func renderImport(w io.Writer, r convert.SyncResponse) {
	fmt.Fprintln(w, r.Message)
	t := newTable(w, "Type", "Imported", "Errors", "Failed")
	types := make([]string, 0, len(r.ByType))
	for k := range r.ByType {
		types = append(types, k)
	}
	sort.SliceStable(types, func(i, j int) bool { return typeRank(types[i]) < typeRank(types[j]) })
	for _, k := range types {
		b := r.ByType[k]
		t.Append([]string{k, strconv.Itoa(b.Imported), strconv.Itoa(b.Errors), strconv.FormatBool(b.Failed)})
	}
	t.SetFooter([]string{"since " + r.StartDate, strconv.Itoa(r.ExpenseCount), strconv.Itoa(r.Errors), ""})
	t.Render()
	if r.Cleared > 0 {
		fmt.Fprintf(w, "cleared %d lines before import\n", r.Cleared)
	}
}

func typeRank(s string) int {
	for i, v := range model.ImportOrder {
		if string(v) == s {
			return i
		}
	}
	return len(model.ImportOrder)
}

func renderSyncLog(w io.Writer, entries []convert.SyncLogEntry) {
	t := newTable(w, "When", "Type", "Dir", "Status", "Entity", "QB Entity", "Error")
	for _, e := range entries {
		t.Append([]string{
			deref(e.CreatedAt), e.SyncType, e.Direction, e.Status,
			deref(e.EntityID), deref(e.QBEntityID), deref(e.ErrorMessage),
		})
	}
	t.Render()
}

// renderLines shows the income account behind an Item reference in place of the category when known.
func renderLines(w io.Writer, lines []convert.LineEntry) {
	t := newTable(w, "Line", "Date", "Counterparty", "Category", "Amount", "Description")
	for _, l := range lines {
		category := l.Category
		if l.IncomeAccountName != "" {
			category = fmt.Sprintf("%s (%s)", l.Category, l.IncomeAccountName)
		}
		t.Append([]string{l.ID, l.TxnDate, l.Counterparty, category, l.Amount, deref(l.Description)})
	}
	t.Render()
}
