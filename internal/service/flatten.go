package service

import (
	"fmt"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/qbo"
)

// FlattenTransaction turns a remote transaction into one local line per qualifying detail line.
func FlattenTransaction(tx qbo.Transaction) ([]model.TransactionLine, error) {
	h := tx.Header()
	date, err := h.Date()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", tx.Kind(), h.ID, err)
	}

	var out []model.TransactionLine
	for i := range h.Line {
		l := &h.Line[i]
		ref, ok := tx.LineRef(l)
		if !ok {
			continue
		}
		ident, kind := qbo.LineIdentifier(l, i)
		line := model.TransactionLine{
			ID:           qbo.CompositeID(tx.Kind(), h.ID, ident),
			TxnType:      tx.Kind(),
			TxnDate:      date,
			Counterparty: tx.Counterparty(l),
			AccountRef:   ref.Value,
			Category:     ref.Name,
			Description:  describe(l.Description, h.PrivateNote),
			Amount:       tx.SignedAmount(l),
			SyncToken:    h.SyncToken,
			QBEntityID:   h.ID,
			QBLineID:     ident,
			QBLineIDKind: kind,
		}
		if l.LineNum != nil {
			n := *l.LineNum
			line.QBLineNum = &n
		}
		out = append(out, line)
	}
	return out, nil
}

func describe(line, note string) *string {
	switch {
	case line != "":
		return &line
	case note != "":
		return &note
	}
	return nil
}
