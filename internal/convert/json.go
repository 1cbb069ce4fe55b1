// Package convert maps between the JSON wire contract and domain types.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/service"
)

const dateLayout = time.DateOnly

// --- helpers ---

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// --- Import (client -> server) ---

// SyncRequest is the body of POST sync-expenses. Both fields are optional.
type SyncRequest struct {
	StartDate string `json:"startDate"`
	FullSync  bool   `json:"fullSync"`
}

// FromSyncRequest validates the start date format.
func FromSyncRequest(in SyncRequest) (service.ImportRequest, error) {
	out := service.ImportRequest{FullSync: in.FullSync}
	if s := strings.TrimSpace(in.StartDate); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return service.ImportRequest{}, fmt.Errorf("%w: startDate must be YYYY-MM-DD", errs.ErrInvalidInput)
		}
		out.StartDate = &d
	}
	return out, nil
}

// --- Import (server -> client) ---

// TypeBreakdown is the per-type part of SyncResponse.
type TypeBreakdown struct {
	Imported int  `json:"imported"`
	Errors   int  `json:"errors"`
	Failed   bool `json:"failed,omitempty"`
}

// SyncResponse is the success body of sync-expenses.
type SyncResponse struct {
	Success      bool                     `json:"success"`
	Message      string                   `json:"message"`
	ExpenseCount int                      `json:"expenseCount"`
	Errors       int                      `json:"errors"`
	StartDate    string                   `json:"startDate"`
	Cleared      int64                    `json:"cleared,omitempty"`
	ByType       map[string]TypeBreakdown `json:"byType,omitempty"`
}

// ToSyncResponse renders an import result.
func ToSyncResponse(r model.ImportResult) SyncResponse {
	out := SyncResponse{
		Success:      true,
		Message:      fmt.Sprintf("Imported %d transaction lines", r.Imported),
		ExpenseCount: r.Imported,
		Errors:       r.Errors,
		StartDate:    r.StartDate.Format(dateLayout),
		Cleared:      r.Cleared,
	}
	if r.Errors > 0 {
		out.Message = fmt.Sprintf("Imported %d transaction lines with %d errors", r.Imported, r.Errors)
	}
	if len(r.PerType) > 0 {
		out.ByType = make(map[string]TypeBreakdown, len(r.PerType))
		for t, tr := range r.PerType {
			out.ByType[string(t)] = TypeBreakdown{Imported: tr.Imported, Errors: tr.Errors, Failed: tr.Failed}
		}
	}
	return out
}

// ErrorResponse is the failure body shared by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ToErrorResponse wraps a message.
func ToErrorResponse(msg string) ErrorResponse { return ErrorResponse{Error: msg} }

// --- Recategorize ---

// RecategorizeRequest is the body of POST recategorize.
type RecategorizeRequest struct {
	LineID      string `json:"lineId" binding:"required"`
	AccountID   string `json:"accountId" binding:"required"`
	AccountName string `json:"accountName"`
}

// RecategorizeResponse reports the new remote SyncToken.
type RecategorizeResponse struct {
	Success   bool   `json:"success"`
	LineID    string `json:"lineId"`
	SyncToken string `json:"syncToken"`
}

// ToRecategorizeResponse renders a recategorization result.
func ToRecategorizeResponse(r model.RecategorizeResult) RecategorizeResponse {
	return RecategorizeResponse{Success: true, LineID: r.LineID, SyncToken: r.SyncToken}
}

// --- Items ---

// ItemSyncResponse is the body of sync-items.
type ItemSyncResponse struct {
	Success   bool `json:"success"`
	ItemCount int  `json:"itemCount"`
}

// --- Connection ---

// ConnectionStatus describes the connection without exposing tokens.
type ConnectionStatus struct {
	Connected            bool    `json:"connected"`
	Status               string  `json:"status"`
	RealmID              string  `json:"realmId,omitempty"`
	AccessTokenExpiresAt *string `json:"accessTokenExpiresAt,omitempty"`
	RefreshTokenExpires  *string `json:"refreshTokenExpiresAt,omitempty"`
	LastSyncAt           *string `json:"lastSyncAt,omitempty"`
}

// ToConnectionStatus renders c; nil means no connected row.
func ToConnectionStatus(c *model.Connection) ConnectionStatus {
	if c == nil {
		return ConnectionStatus{Status: "disconnected"}
	}
	return ConnectionStatus{
		Connected:            c.Status == model.ConnectionConnected,
		Status:               string(c.Status),
		RealmID:              c.RealmID,
		AccessTokenExpiresAt: formatTime(&c.AccessTokenExpiresAt),
		RefreshTokenExpires:  formatTime(&c.RefreshTokenExpiresAt),
		LastSyncAt:           formatTime(c.LastSyncAt),
	}
}

// --- Sync log ---

// SyncLogEntry is one row of the sync-log listing.
type SyncLogEntry struct {
	ID           string  `json:"id"`
	SyncType     string  `json:"syncType"`
	Direction    string  `json:"direction"`
	Status       string  `json:"status"`
	EntityID     *string `json:"entityId"`
	QBEntityID   *string `json:"qbEntityId"`
	ErrorMessage *string `json:"errorMessage"`
	RetryCount   int     `json:"retryCount"`
	CreatedAt    *string `json:"createdAt"`
}

// ToSyncLogEntries renders entries in their given order.
func ToSyncLogEntries(in []model.SyncLogEntry) []SyncLogEntry {
	out := make([]SyncLogEntry, 0, len(in))
	for i := range in {
		e := &in[i]
		out = append(out, SyncLogEntry{
			ID:           e.ID.String(),
			SyncType:     string(e.SyncType),
			Direction:    string(e.Direction),
			Status:       string(e.Status),
			EntityID:     e.EntityID,
			QBEntityID:   e.QBEntityID,
			ErrorMessage: e.ErrorMessage,
			RetryCount:   e.RetryCount,
			CreatedAt:    formatTime(&e.CreatedAt),
		})
	}
	return out
}

// --- Lines ---

// LineEntry is one row of the cached line listing. Amount keeps its exact decimal text.
type LineEntry struct {
	ID                string  `json:"id"`
	TxnType           string  `json:"txnType"`
	TxnDate           string  `json:"txnDate"`
	Counterparty      string  `json:"counterparty"`
	AccountRef        string  `json:"accountRef"`
	Category          string  `json:"category"`
	Description       *string `json:"description"`
	Amount            string  `json:"amount"`
	SyncToken         string  `json:"syncToken"`
	IncomeAccountID   string  `json:"incomeAccountId,omitempty"`
	IncomeAccountName string  `json:"incomeAccountName,omitempty"`
}

// LinesResponse is the body of GET lines.
type LinesResponse struct {
	Success bool        `json:"success"`
	Lines   []LineEntry `json:"lines"`
}

// ToLineEntries renders lines in their given order.
func ToLineEntries(in []model.ResolvedLine) []LineEntry {
	out := make([]LineEntry, 0, len(in))
	for i := range in {
		l := &in[i]
		out = append(out, LineEntry{
			ID:                l.ID,
			TxnType:           string(l.TxnType),
			TxnDate:           l.TxnDate.Format(dateLayout),
			Counterparty:      l.Counterparty,
			AccountRef:        l.AccountRef,
			Category:          l.Category,
			Description:       l.Description,
			Amount:            l.Amount.StringFixed(2),
			SyncToken:         l.SyncToken,
			IncomeAccountID:   l.IncomeAccountID,
			IncomeAccountName: l.IncomeAccountName,
		})
	}
	return out
}
