package service

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"sync"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/qbo"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/oauth2"
)

type fakeConnRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*model.Connection
	gets  int
	saved []model.TokenSet

	getActiveErr error
	updateErr    error
	createErr    error
	created      *model.Connection
	touched      []uuid.UUID
}

var _ repository.ConnectionRepository = (*fakeConnRepo)(nil)

func newFakeConnRepo(cs ...*model.Connection) *fakeConnRepo {
	f := &fakeConnRepo{rows: map[uuid.UUID]*model.Connection{}}
	for _, c := range cs {
		cpy := *c
		f.rows[c.ID] = &cpy
	}
	return f
}

func (f *fakeConnRepo) GetActive(_ context.Context) (*model.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getActiveErr != nil {
		return nil, f.getActiveErr
	}
	for _, c := range f.rows {
		if c.Status == model.ConnectionConnected {
			cpy := *c
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeConnRepo) Get(_ context.Context, id uuid.UUID) (*model.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	c, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}
func (f *fakeConnRepo) Create(_ context.Context, c *model.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV4())
	}
	for _, old := range f.rows {
		if old.Status == model.ConnectionConnected {
			old.Status = model.ConnectionExpired
		}
	}
	cpy := *c
	f.rows[c.ID] = &cpy
	f.created = &cpy
	return nil
}
func (f *fakeConnRepo) UpdateTokens(_ context.Context, id uuid.UUID, ts model.TokenSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.AccessToken, c.RefreshToken = ts.AccessToken, ts.RefreshToken
	c.AccessTokenExpiresAt, c.RefreshTokenExpiresAt = ts.AccessTokenExpiresAt, ts.RefreshTokenExpiresAt
	f.saved = append(f.saved, ts)
	return nil
}
func (f *fakeConnRepo) SetStatus(_ context.Context, id uuid.UUID, st model.ConnectionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.Status = st
	return nil
}
func (f *fakeConnRepo) TouchLastSync(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeConnRepo) row(id uuid.UUID) model.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

type fakeTokens struct {
	mu          sync.Mutex
	refreshIn   []string
	refreshOut  *oauth2.Token
	refreshErr  error
	exchangeIn  string
	exchangeOut *oauth2.Token
	exchangeErr error
	block       chan struct{} // when set, Refresh waits on it
}

var _ TokenRefresher = (*fakeTokens)(nil)

func (f *fakeTokens) AuthCodeURL(state string) string { return "https://consent.example/?state=" + state }
func (f *fakeTokens) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.exchangeIn = code
	return f.exchangeOut, f.exchangeErr
}
func (f *fakeTokens) Refresh(_ context.Context, rt string) (*oauth2.Token, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshIn = append(f.refreshIn, rt)
	return f.refreshOut, f.refreshErr
}
func (f *fakeTokens) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshIn)
}

// fakeConns hands out a fixed connection.
type fakeConns struct {
	mu        sync.Mutex
	conn      *model.Connection
	getErr    error
	freshErr  error
	freshened int
	synced    []uuid.UUID
}

var _ ConnectionService = (*fakeConns)(nil)

func (f *fakeConns) GetActiveConnection(context.Context) (*model.Connection, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.conn, nil
}
func (f *fakeConns) EnsureFreshToken(_ context.Context, c *model.Connection) (*model.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshened++
	if f.freshErr != nil {
		return nil, f.freshErr
	}
	return c, nil
}
func (f *fakeConns) AuthCodeURL(state string) string { return state }
func (f *fakeConns) Connect(context.Context, string, string, uuid.UUID) (*model.Connection, error) {
	return f.conn, nil
}
func (f *fakeConns) MarkSynced(_ context.Context, id uuid.UUID) error {
	f.synced = append(f.synced, id)
	return nil
}

type fakeLineRepo struct {
	mu        sync.Mutex
	rows      map[string]model.TransactionLine
	upserts   int
	failIDs   map[string]error
	deleted   int64
	deleteErr error
	updIn     []string
	updErr    error
	listIn    []any
	listErr   error
}

var _ repository.TransactionLineRepository = (*fakeLineRepo)(nil)

func newFakeLineRepo() *fakeLineRepo {
	return &fakeLineRepo{rows: map[string]model.TransactionLine{}, failIDs: map[string]error{}}
}

func (f *fakeLineRepo) Upsert(_ context.Context, l *model.TransactionLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIDs[l.ID]; err != nil {
		return err
	}
	f.upserts++
	f.rows[l.ID] = *l
	return nil
}
func (f *fakeLineRepo) Get(_ context.Context, id string) (*model.TransactionLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &l, nil
}
func (f *fakeLineRepo) UpdateCategory(_ context.Context, id, accountRef, category, syncToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updIn = []string{id, accountRef, category, syncToken}
	if f.updErr != nil {
		return f.updErr
	}
	l, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	l.AccountRef, l.Category, l.SyncToken = accountRef, category, syncToken
	f.rows[id] = l
	return nil
}
func (f *fakeLineRepo) DeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := int64(len(f.rows))
	f.deleted += n
	f.rows = map[string]model.TransactionLine{}
	return n, nil
}
func (f *fakeLineRepo) List(_ context.Context, kind model.TxnType, limit int) ([]model.TransactionLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listIn = []any{kind, limit}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.TransactionLine
	for _, l := range f.rows {
		if kind == "" || l.TxnType == kind {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeItemRepo struct {
	upsertIn  []model.Item
	upsertErr error
	getIn     string
	getOut    *model.Item
	getErr    error
	byID      map[string]model.Item // when set, Get looks ids up here
	gets      int
}

var _ repository.ItemRepository = (*fakeItemRepo)(nil)

func (f *fakeItemRepo) UpsertBatch(_ context.Context, items []model.Item) (int, error) {
	f.upsertIn = append([]model.Item(nil), items...)
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return len(items), nil
}
func (f *fakeItemRepo) Get(_ context.Context, id string) (*model.Item, error) {
	f.getIn = id
	f.gets++
	if f.byID != nil {
		it, ok := f.byID[id]
		if !ok {
			return nil, errs.ErrNotFound
		}
		return &it, nil
	}
	return f.getOut, f.getErr
}

type fakeSyncLogRepo struct {
	mu        sync.Mutex
	entries   []model.SyncLogEntry
	appendErr error
	recentIn  int
}

var _ repository.SyncLogRepository = (*fakeSyncLogRepo)(nil)

func (f *fakeSyncLogRepo) Append(_ context.Context, e *model.SyncLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, *e)
	return nil
}
func (f *fakeSyncLogRepo) Recent(_ context.Context, limit int) ([]model.SyncLogEntry, error) {
	f.recentIn = limit
	return f.entries, nil
}

func (f *fakeSyncLogRepo) byStatus(st model.SyncStatus) []model.SyncLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SyncLogEntry
	for _, e := range f.entries {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}

type fakeUsers struct {
	byAuth map[uuid.UUID]*model.User
	getErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) GetByAuthID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byAuth[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

// doerCall is one request seen by fakeDoer.
type doerCall struct {
	Method   string
	Resource string
	Query    string
	Body     []byte
}

// fakeDoer answers API calls from a handler that returns a JSON body or an error.
type fakeDoer struct {
	mu     sync.Mutex
	calls  []doerCall
	handle func(c doerCall) (string, error)
}

var _ qbo.Doer = (*fakeDoer)(nil)

func (f *fakeDoer) Do(_ context.Context, _ *model.Connection, method, resource string, q url.Values, body, out any) error {
	c := doerCall{Method: method, Resource: resource, Query: q.Get("query")}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		c.Body = b
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	resp, err := f.handle(c)
	if err != nil {
		return err
	}
	if out == nil || resp == "" {
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func (f *fakeDoer) callsTo(method string) []doerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []doerCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
