// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// ConnectionStatus is the lifecycle state of a QuickBooks connection.
type ConnectionStatus string

const (
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionExpired   ConnectionStatus = "expired"
	ConnectionError     ConnectionStatus = "error"
)

// Connection is the company-wide QuickBooks OAuth connection. At most one row is connected.
type Connection struct {
	ID                    uuid.UUID
	RealmID               string // QuickBooks company id
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	Status                ConnectionStatus
	ConnectedBy           uuid.UUID // users.id of the admin who completed OAuth (may be Nil)
	LastSyncAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TokenSet is the group of fields a refresh rewrites together.
type TokenSet struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// TxnType names a QuickBooks transaction entity.
type TxnType string

const (
	TxnPurchase     TxnType = "Purchase"
	TxnBill         TxnType = "Bill"
	TxnInvoice      TxnType = "Invoice"
	TxnSalesReceipt TxnType = "SalesReceipt"
	TxnJournalEntry TxnType = "JournalEntry"
)

// ImportOrder is the fixed order in which transaction types are pulled.
var ImportOrder = []TxnType{TxnPurchase, TxnBill, TxnInvoice, TxnSalesReceipt, TxnJournalEntry}

// Token returns the lowercase form used in composite ids and resource paths.
func (t TxnType) Token() string { return strings.ToLower(string(t)) }

// ReferencesItems reports whether lines of this type carry an Item reference instead of an Account.
func (t TxnType) ReferencesItems() bool { return t == TxnInvoice || t == TxnSalesReceipt }

// ParseTxnType maps a stored or user-provided name back to a TxnType.
func ParseTxnType(s string) (TxnType, bool) {
	for _, t := range ImportOrder {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// LineIDKind records which remote field a stored line identifier came from.
type LineIDKind string

const (
	LineIDNum   LineIDKind = "linenum"
	LineIDID    LineIDKind = "id"
	LineIDIndex LineIDKind = "index"
)

// TransactionLine is the local cache of one QuickBooks line item.
type TransactionLine struct {
	ID           string // {type}_{txnId}_line{lineId}
	TxnType      TxnType
	TxnDate      time.Time
	Counterparty string          // vendor or customer name
	AccountRef   string          // Account id, or Item id for Invoice/SalesReceipt
	Category     string          // display name of AccountRef
	Description  *string         // line description, else parent private note
	Amount       decimal.Decimal // signed
	SyncToken    string
	QBEntityID   string
	QBLineID     string // identifier used in ID: LineNum, else line Id, else index
	QBLineIDKind LineIDKind
	QBLineNum    *int // nil when the remote line had no LineNum
	ImportedAt   time.Time
	UpdatedAt    time.Time
}

// ResolvedLine is a cached line with the income account behind its Item reference, when it has one.
type ResolvedLine struct {
	TransactionLine
	IncomeAccountID   string
	IncomeAccountName string
}

// Item is the local Item -> income account mapping used to resolve invoice lines.
type Item struct {
	QBItemID          string
	Name              string
	Type              string
	Active            bool
	IncomeAccountID   string
	IncomeAccountName string
	SyncToken         string
	UpdatedAt         time.Time
}

// SyncType classifies a sync log entry.
type SyncType string

const (
	SyncInvoice  SyncType = "invoice"
	SyncPayment  SyncType = "payment"
	SyncExpense  SyncType = "expense"
	SyncCustomer SyncType = "customer"
	SyncVendor   SyncType = "vendor"
	SyncBill     SyncType = "bill"
	SyncItem     SyncType = "item"
)

// SyncDirection is inbound (QuickBooks -> local) or outbound.
type SyncDirection string

const (
	DirectionInbound  SyncDirection = "inbound"
	DirectionOutbound SyncDirection = "outbound"
)

// SyncStatus is the outcome of a sync attempt.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncPending SyncStatus = "pending"
)

// SyncLogEntry is one append-only sync attempt record.
type SyncLogEntry struct {
	ID           uuid.UUID
	SyncType     SyncType
	Direction    SyncDirection
	Status       SyncStatus
	EntityID     *string // local entity reference
	QBEntityID   *string
	ErrorMessage *string
	RetryCount   int
	CreatedAt    time.Time
}

// User is a row of the local users table used for role checks.
type User struct {
	ID         uuid.UUID
	AuthUserID uuid.UUID // subject of the session JWT
	Email      string
	Role       string
}

// RoleAdmin is the only role allowed to trigger syncs.
const RoleAdmin = "admin"

// TypeResult is the per-type outcome of an import run.
type TypeResult struct {
	Imported int
	Errors   int
	Failed   bool // the type's fetch aborted
}

// ImportResult summarizes an import run. Partial imports persist.
type ImportResult struct {
	StartDate time.Time
	Imported  int
	Errors    int
	Cleared   int64 // rows removed by a full refresh
	PerType   map[TxnType]TypeResult
}

// RecategorizeResult reports the new remote SyncToken after a successful update.
type RecategorizeResult struct {
	LineID    string
	SyncToken string
}
