package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/lock"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const adminToken = "admin-token"

type fakeAuth struct {
	admin    *model.User
	stateFor uuid.UUID
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) VerifyAdmin(_ context.Context, bearer string) (*model.User, error) {
	switch bearer {
	case adminToken:
		return f.admin, nil
	case "staff-token":
		return nil, errs.ErrForbidden
	}
	return nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
}
func (f *fakeAuth) IssueState(id uuid.UUID) (string, error) { return "state-" + id.String(), nil }
func (f *fakeAuth) VerifyState(st string) (uuid.UUID, error) {
	if st != "state-"+f.stateFor.String() {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return f.stateFor, nil
}

type fakeConns struct {
	conn       *model.Connection
	getErr     error
	connectErr error
	connectIn  []string
	connectBy  uuid.UUID
}

var _ service.ConnectionService = (*fakeConns)(nil)

func (f *fakeConns) GetActiveConnection(context.Context) (*model.Connection, error) {
	return f.conn, f.getErr
}
func (f *fakeConns) EnsureFreshToken(_ context.Context, c *model.Connection) (*model.Connection, error) {
	return c, nil
}
func (f *fakeConns) AuthCodeURL(state string) string { return "https://appcenter.example/?state=" + state }
func (f *fakeConns) Connect(_ context.Context, code, realm string, by uuid.UUID) (*model.Connection, error) {
	f.connectIn, f.connectBy = []string{code, realm}, by
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &model.Connection{RealmID: realm, Status: model.ConnectionConnected}, nil
}
func (f *fakeConns) MarkSynced(context.Context, uuid.UUID) error { return nil }

type fakeImports struct {
	in     *service.ImportRequest
	out    model.ImportResult
	err    error
	items  int
	itemEr error

	linesIn  []any
	lines    []model.ResolvedLine
	linesErr error
}

var _ service.ImportService = (*fakeImports)(nil)

func (f *fakeImports) ImportTransactions(_ context.Context, req service.ImportRequest) (model.ImportResult, error) {
	f.in = &req
	return f.out, f.err
}
func (f *fakeImports) SyncItems(context.Context) (int, error) { return f.items, f.itemEr }
func (f *fakeImports) ResolveIncomeAccount(context.Context, string) (*model.Item, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeImports) ListLines(_ context.Context, typ string, limit int) ([]model.ResolvedLine, error) {
	f.linesIn = []any{typ, limit}
	return f.lines, f.linesErr
}

type fakeRecat struct {
	in  []string
	out model.RecategorizeResult
	err error
}

var _ service.RecategorizeService = (*fakeRecat)(nil)

func (f *fakeRecat) Recategorize(_ context.Context, line, acct, name string) (model.RecategorizeResult, error) {
	f.in = []string{line, acct, name}
	return f.out, f.err
}

type fakeSyncLog struct {
	limit   int
	entries []model.SyncLogEntry
}

var _ service.SyncLogService = (*fakeSyncLog)(nil)

func (f *fakeSyncLog) Record(context.Context, model.SyncType, model.SyncDirection, model.SyncStatus, service.RecordOptions) {
}
func (f *fakeSyncLog) Recent(_ context.Context, limit int) ([]model.SyncLogEntry, error) {
	f.limit = limit
	return f.entries, nil
}

type fixture struct {
	srv     *Server
	router  *gin.Engine
	auth    *fakeAuth
	conns   *fakeConns
	imports *fakeImports
	recat   *fakeRecat
	synclog *fakeSyncLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		auth:    &fakeAuth{admin: &model.User{ID: uuid.Must(uuid.NewV4()), Role: model.RoleAdmin}},
		conns:   &fakeConns{},
		imports: &fakeImports{},
		recat:   &fakeRecat{},
		synclog: &fakeSyncLog{},
	}
	f.srv = New(f.auth, f.conns, f.imports, f.recat, f.synclog, zaptest.NewLogger(t))
	f.router = f.srv.Routes(prometheus.NewRegistry())
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestSyncExpenses_OK(t *testing.T) {
	f := newFixture(t)
	f.imports.out = model.ImportResult{
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Imported:  3,
		PerType:   map[model.TxnType]model.TypeResult{model.TxnPurchase: {Imported: 3}},
	}

	w := f.do(http.MethodPost, "/api/quickbooks/sync-expenses", adminToken, `{"startDate":"2025-01-01","fullSync":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode(t, w)
	require.Equal(t, true, m["success"])
	require.Equal(t, float64(3), m["expenseCount"])
	require.Equal(t, float64(0), m["errors"])
	require.Equal(t, "2025-01-01", m["startDate"])

	require.NotNil(t, f.imports.in)
	require.True(t, f.imports.in.FullSync)
	require.True(t, f.imports.in.StartDate.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSyncExpenses_EmptyBodyUsesDefaults(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/quickbooks/sync-expenses", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Nil(t, f.imports.in.StartDate)
	require.False(t, f.imports.in.FullSync)
}

func TestSyncExpenses_AuthBeforeWork(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/quickbooks/sync-expenses", "", `{}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, false, decode(t, w)["success"])

	w = f.do(http.MethodPost, "/api/quickbooks/sync-expenses", "forged", `{}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/quickbooks/sync-expenses", "staff-token", `{}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	require.Nil(t, f.imports.in, "service must not run for rejected callers")
}

func TestSyncExpenses_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{"startDate":`, nil, http.StatusBadRequest},
		{"bad date", `{"startDate":"01/02/2025"}`, nil, http.StatusBadRequest},
		{"not connected", `{}`, errs.ErrNotConnected, http.StatusPreconditionFailed},
		{"reconnect", `{}`, fmt.Errorf("%w: invalid_grant", errs.ErrReconnectRequired), http.StatusUnauthorized},
		{"busy", `{}`, lock.ErrNotObtained, http.StatusServiceUnavailable},
		{"other", `{}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.imports.err = tc.err
			w := f.do(http.MethodPost, "/api/quickbooks/sync-expenses", adminToken, tc.body)
			require.Equal(t, tc.want, w.Code, w.Body.String())
			m := decode(t, w)
			require.Equal(t, false, m["success"])
			require.NotEmpty(t, m["error"])
		})
	}
}

func TestRecategorize(t *testing.T) {
	f := newFixture(t)
	f.recat.out = model.RecategorizeResult{LineID: "purchase_123_line1", SyncToken: "3"}

	w := f.do(http.MethodPost, "/api/quickbooks/recategorize", adminToken,
		`{"lineId":"purchase_123_line1","accountId":"80","accountName":"Travel"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode(t, w)
	require.Equal(t, "3", m["syncToken"])
	require.Equal(t, []string{"purchase_123_line1", "80", "Travel"}, f.recat.in)

	w = f.do(http.MethodPost, "/api/quickbooks/recategorize", adminToken, `{"lineId":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.recat.err = fmt.Errorf("recategorize x: %w", errs.ErrVersionConflict)
	w = f.do(http.MethodPost, "/api/quickbooks/recategorize", adminToken, `{"lineId":"x","accountId":"1"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, decode(t, w)["error"], "stale data, re-sync required")

	f.recat.err = errs.ErrNotFound
	w = f.do(http.MethodPost, "/api/quickbooks/recategorize", adminToken, `{"lineId":"x","accountId":"1"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncItems(t *testing.T) {
	f := newFixture(t)
	f.imports.items = 7
	w := f.do(http.MethodPost, "/api/quickbooks/sync-items", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(7), decode(t, w)["itemCount"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.conns.getErr = errs.ErrNotConnected
	w := f.do(http.MethodGet, "/api/quickbooks/status", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decode(t, w)["connected"])

	f.conns.getErr = nil
	f.conns.conn = &model.Connection{RealmID: "9130", AccessToken: "secret", Status: model.ConnectionConnected,
		AccessTokenExpiresAt: time.Now().Add(time.Hour)}
	w = f.do(http.MethodGet, "/api/quickbooks/status", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "secret")
	require.Equal(t, "9130", decode(t, w)["realmId"])
}

func TestSyncLog(t *testing.T) {
	f := newFixture(t)
	f.synclog.entries = []model.SyncLogEntry{{ID: uuid.Must(uuid.NewV4()), SyncType: model.SyncExpense,
		Direction: model.DirectionInbound, Status: model.SyncSuccess}}

	w := f.do(http.MethodGet, "/api/quickbooks/sync-log?limit=5", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 5, f.synclog.limit)
	require.Len(t, decode(t, w)["entries"], 1)

	w = f.do(http.MethodGet, "/api/quickbooks/sync-log?limit=abc", adminToken, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLines(t *testing.T) {
	f := newFixture(t)
	f.imports.lines = []model.ResolvedLine{{
		TransactionLine: model.TransactionLine{ID: "invoice_1_line1", TxnType: model.TxnInvoice,
			TxnDate: time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("99.9")},
		IncomeAccountID: "79", IncomeAccountName: "Services",
	}}

	w := f.do(http.MethodGet, "/api/quickbooks/lines?limit=20&type=invoice", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []any{"invoice", 20}, f.imports.linesIn)
	m := decode(t, w)
	require.Equal(t, true, m["success"])
	lines, _ := m["lines"].([]any)
	require.Len(t, lines, 1)
	first, _ := lines[0].(map[string]any)
	require.Equal(t, "99.90", first["amount"])
	require.Equal(t, "Services", first["incomeAccountName"])

	w = f.do(http.MethodGet, "/api/quickbooks/lines", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{"", 0}, f.imports.linesIn)

	w = f.do(http.MethodGet, "/api/quickbooks/lines?limit=-1", adminToken, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.imports.linesErr = fmt.Errorf("%w: unknown transaction type", errs.ErrInvalidInput)
	w = f.do(http.MethodGet, "/api/quickbooks/lines?type=Estimate", adminToken, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/quickbooks/lines", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConnectAndCallback(t *testing.T) {
	f := newFixture(t)
	f.auth.stateFor = f.auth.admin.ID

	w := f.do(http.MethodGet, "/api/quickbooks/connect", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	url, _ := decode(t, w)["url"].(string)
	require.Contains(t, url, "state=state-"+f.auth.admin.ID.String())

	w = f.do(http.MethodGet, "/api/quickbooks/callback?code=c1&realmId=9130&state=state-"+f.auth.admin.ID.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []string{"c1", "9130"}, f.conns.connectIn)
	require.Equal(t, f.auth.admin.ID, f.conns.connectBy)

	w = f.do(http.MethodGet, "/api/quickbooks/callback?code=c1&realmId=9130&state=forged", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/quickbooks/callback?error=access_denied", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	f.srv.ConnectedRedirect = "https://ovis.example/settings"
	w = f.do(http.MethodGet, "/api/quickbooks/callback?code=c2&realmId=9130&state=state-"+f.auth.admin.ID.String(), "", "")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://ovis.example/settings", w.Header().Get("Location"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, decode(t, w), "schemaVersion")
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "", "").Code)
}

func TestHealth_SchemaVersion(t *testing.T) {
	f := newFixture(t)
	f.srv.SchemaVersion = func(context.Context) (int64, error) { return 4, nil }

	w := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"status": "ok", "schemaVersion": float64(4)}, decode(t, w))

	f.srv.SchemaVersion = func(context.Context) (int64, error) { return 0, errors.New("connection refused") }
	w = f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "unavailable", decode(t, w)["status"])
}

func TestRecover_CatchesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recover(zaptest.NewLogger(t)), Logging(zaptest.NewLogger(t)))
	r.GET("/boom", func(*gin.Context) { panic("oh no") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "internal")
}

func TestBearerToken(t *testing.T) {
	got, err := BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", got)

	got, err = BearerToken("bearer   xyz ")
	require.NoError(t, err)
	require.Equal(t, "xyz", got)

	for _, bad := range []string{"", "Basic foo", "Bearer   "} {
		_, err := BearerToken(bad)
		require.Error(t, err, bad)
	}
}

func TestUserCtx(t *testing.T) {
	_, ok := UserFromCtx(context.Background())
	require.False(t, ok)
	u := &model.User{Email: "owner@ovis.test"}
	got, ok := UserFromCtx(WithUser(context.Background(), u))
	require.True(t, ok)
	require.Equal(t, u, got)
}
