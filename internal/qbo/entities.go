package qbo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/shopspring/decimal"
)

// Line detail types that carry a categorizable reference.
const (
	DetailAccountBasedExpense = "AccountBasedExpenseLineDetail"
	DetailSalesItem           = "SalesItemLineDetail"
	DetailJournalEntry        = "JournalEntryLineDetail"
)

// Ref is a QuickBooks reference: an id plus an optional display name.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// Line is one element of a transaction's Line array.
type Line struct {
	ID          string          `json:"Id,omitempty"`
	LineNum     *int            `json:"LineNum,omitempty"`
	Description string          `json:"Description,omitempty"`
	Amount      decimal.Decimal `json:"Amount"`
	DetailType  string          `json:"DetailType"`

	AccountBasedExpenseLineDetail *AccountBasedExpenseLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
	SalesItemLineDetail           *SalesItemLineDetail           `json:"SalesItemLineDetail,omitempty"`
	JournalEntryLineDetail        *JournalEntryLineDetail        `json:"JournalEntryLineDetail,omitempty"`
}

type AccountBasedExpenseLineDetail struct {
	AccountRef Ref `json:"AccountRef"`
}

type SalesItemLineDetail struct {
	ItemRef Ref `json:"ItemRef"`
}

type JournalEntryLineDetail struct {
	PostingType string         `json:"PostingType"` // Debit or Credit
	AccountRef  Ref            `json:"AccountRef"`
	Entity      *JournalEntity `json:"Entity,omitempty"`
}

type JournalEntity struct {
	Type      string `json:"Type"`
	EntityRef Ref    `json:"EntityRef"`
}

// TxnHeader holds the fields every transaction entity shares.
type TxnHeader struct {
	ID          string `json:"Id"`
	SyncToken   string `json:"SyncToken"`
	TxnDate     string `json:"TxnDate"`
	PrivateNote string `json:"PrivateNote,omitempty"`
	Line        []Line `json:"Line"`
}

// Date parses TxnDate (YYYY-MM-DD).
func (h *TxnHeader) Date() (time.Time, error) {
	return time.Parse(time.DateOnly, h.TxnDate)
}

// Transaction is implemented by the five imported entity types.
type Transaction interface {
	Kind() model.TxnType
	Header() *TxnHeader
	// LineRef returns the reference a line is categorized by; false for lines that are not imported.
	LineRef(l *Line) (Ref, bool)
	SignedAmount(l *Line) decimal.Decimal
	Counterparty(l *Line) string
}

type Purchase struct {
	TxnHeader
	EntityRef   *Ref   `json:"EntityRef,omitempty"`
	Credit      *bool  `json:"Credit,omitempty"` // true for a vendor refund
	PaymentType string `json:"PaymentType,omitempty"`
}

func (p *Purchase) Kind() model.TxnType         { return model.TxnPurchase }
func (p *Purchase) Header() *TxnHeader          { return &p.TxnHeader }
func (p *Purchase) LineRef(l *Line) (Ref, bool) { return expenseRef(l) }

func (p *Purchase) SignedAmount(l *Line) decimal.Decimal {
	if p.Credit != nil && *p.Credit {
		return l.Amount.Neg()
	}
	return l.Amount
}

func (p *Purchase) Counterparty(*Line) string {
	if p.EntityRef == nil {
		return ""
	}
	return p.EntityRef.Name
}

type Bill struct {
	TxnHeader
	VendorRef Ref `json:"VendorRef"`
}

func (b *Bill) Kind() model.TxnType                  { return model.TxnBill }
func (b *Bill) Header() *TxnHeader                   { return &b.TxnHeader }
func (b *Bill) LineRef(l *Line) (Ref, bool)          { return expenseRef(l) }
func (b *Bill) SignedAmount(l *Line) decimal.Decimal { return l.Amount }
func (b *Bill) Counterparty(*Line) string            { return b.VendorRef.Name }

type Invoice struct {
	TxnHeader
	CustomerRef Ref `json:"CustomerRef"`
}

func (i *Invoice) Kind() model.TxnType                  { return model.TxnInvoice }
func (i *Invoice) Header() *TxnHeader                   { return &i.TxnHeader }
func (i *Invoice) LineRef(l *Line) (Ref, bool)          { return itemRef(l) }
func (i *Invoice) SignedAmount(l *Line) decimal.Decimal { return l.Amount }
func (i *Invoice) Counterparty(*Line) string            { return i.CustomerRef.Name }

type SalesReceipt struct {
	TxnHeader
	CustomerRef Ref `json:"CustomerRef"`
}

func (s *SalesReceipt) Kind() model.TxnType                  { return model.TxnSalesReceipt }
func (s *SalesReceipt) Header() *TxnHeader                   { return &s.TxnHeader }
func (s *SalesReceipt) LineRef(l *Line) (Ref, bool)          { return itemRef(l) }
func (s *SalesReceipt) SignedAmount(l *Line) decimal.Decimal { return l.Amount }
func (s *SalesReceipt) Counterparty(*Line) string            { return s.CustomerRef.Name }

type JournalEntry struct {
	TxnHeader
}

func (j *JournalEntry) Kind() model.TxnType { return model.TxnJournalEntry }
func (j *JournalEntry) Header() *TxnHeader  { return &j.TxnHeader }

func (j *JournalEntry) LineRef(l *Line) (Ref, bool) {
	if l.DetailType != DetailJournalEntry || l.JournalEntryLineDetail == nil {
		return Ref{}, false
	}
	r := l.JournalEntryLineDetail.AccountRef
	return r, r.Value != ""
}

func (j *JournalEntry) SignedAmount(l *Line) decimal.Decimal {
	if l.JournalEntryLineDetail != nil && l.JournalEntryLineDetail.PostingType == "Credit" {
		return l.Amount.Neg()
	}
	return l.Amount
}

func (j *JournalEntry) Counterparty(l *Line) string {
	if l.JournalEntryLineDetail == nil || l.JournalEntryLineDetail.Entity == nil {
		return ""
	}
	return l.JournalEntryLineDetail.Entity.EntityRef.Name
}

func expenseRef(l *Line) (Ref, bool) {
	if l.DetailType != DetailAccountBasedExpense || l.AccountBasedExpenseLineDetail == nil {
		return Ref{}, false
	}
	r := l.AccountBasedExpenseLineDetail.AccountRef
	return r, r.Value != ""
}

func itemRef(l *Line) (Ref, bool) {
	if l.DetailType != DetailSalesItem || l.SalesItemLineDetail == nil {
		return Ref{}, false
	}
	r := l.SalesItemLineDetail.ItemRef
	return r, r.Value != ""
}

// LineIdentifier is LineNum when present, else the line Id, else the position in Line.
// The kind says which one was used.
func LineIdentifier(l *Line, index int) (string, model.LineIDKind) {
	switch {
	case l.LineNum != nil:
		return strconv.Itoa(*l.LineNum), model.LineIDNum
	case l.ID != "":
		return l.ID, model.LineIDID
	default:
		return strconv.Itoa(index), model.LineIDIndex
	}
}

// CompositeID is the local primary key of a line, e.g. purchase_123_line1.
func CompositeID(kind model.TxnType, txnID, lineIdent string) string {
	return kind.Token() + "_" + txnID + "_line" + lineIdent
}

// Item is a product or service; IncomeAccountRef maps sales of it to an account.
type Item struct {
	ID               string `json:"Id"`
	Name             string `json:"Name"`
	Type             string `json:"Type"`
	Active           bool   `json:"Active"`
	SyncToken        string `json:"SyncToken"`
	IncomeAccountRef *Ref   `json:"IncomeAccountRef,omitempty"`
}

// QueryTransactions pages through every entity of kind dated on or after since.
func QueryTransactions(ctx context.Context, d Doer, conn *model.Connection, kind model.TxnType, since time.Time, fn func([]Transaction) error) error {
	where := SinceDate(since)
	switch kind {
	case model.TxnPurchase:
		return queryAs[Purchase](ctx, d, conn, kind, where, fn)
	case model.TxnBill:
		return queryAs[Bill](ctx, d, conn, kind, where, fn)
	case model.TxnInvoice:
		return queryAs[Invoice](ctx, d, conn, kind, where, fn)
	case model.TxnSalesReceipt:
		return queryAs[SalesReceipt](ctx, d, conn, kind, where, fn)
	case model.TxnJournalEntry:
		return queryAs[JournalEntry](ctx, d, conn, kind, where, fn)
	}
	return fmt.Errorf("unsupported transaction type %q", kind)
}

func queryAs[T any, P interface {
	*T
	Transaction
}](ctx context.Context, d Doer, conn *model.Connection, kind model.TxnType, where string, fn func([]Transaction) error) error {
	return QueryPages(ctx, d, conn, string(kind), where, func(page []T) error {
		out := make([]Transaction, len(page))
		for i := range page {
			out[i] = P(&page[i])
		}
		return fn(out)
	})
}
