// Package httpserver exposes the QuickBooks sync HTTP API.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/and161185/ovis-qbsync/internal/convert"
	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	conns   service.ConnectionService
	imports service.ImportService
	recat   service.RecategorizeService
	synclog service.SyncLogService
	log     *zap.Logger

	// ConnectedRedirect, when set, is where the OAuth callback sends the browser.
	ConnectedRedirect string
	// SchemaVersion, when set, reports the applied migration version on /healthz.
	SchemaVersion func(ctx context.Context) (int64, error)
}

// New constructs an HTTP server with injected services.
func New(auth service.AuthService, conns service.ConnectionService, imports service.ImportService,
	recat service.RecategorizeService, synclog service.SyncLogService, log *zap.Logger) *Server {
	return &Server{auth: auth, conns: conns, imports: imports, recat: recat, synclog: synclog, log: log}
}

// Routes builds the router. gatherer may be nil to skip /metrics.
func (s *Server) Routes(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.log), Logging(s.log))

	r.GET("/healthz", s.healthz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/quickbooks")
	api.GET("/callback", s.callback)

	admin := api.Group("", RequireAdmin(s.auth))
	admin.POST("/sync-expenses", s.syncExpenses)
	admin.POST("/recategorize", s.recategorize)
	admin.POST("/sync-items", s.syncItems)
	admin.GET("/status", s.status)
	admin.GET("/sync-log", s.syncLog)
	admin.GET("/lines", s.lines)
	admin.GET("/connect", s.connect)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.SchemaVersion == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	v, err := s.SchemaVersion(c.Request.Context())
	if err != nil {
		s.log.Warn("schema version unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "schemaVersion": v})
}

// queryLimit reads an optional non-negative ?limit; 0 lets the service pick its default.
func queryLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.ErrInvalidInput
	}
	return n, nil
}

// --- Import ---

func (s *Server) syncExpenses(c *gin.Context) {
	var body convert.SyncRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, errs.ErrInvalidInput)
		return
	}
	req, err := convert.FromSyncRequest(body)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.imports.ImportTransactions(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToSyncResponse(res))
}

func (s *Server) syncItems(c *gin.Context) {
	n, err := s.imports.SyncItems(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ItemSyncResponse{Success: true, ItemCount: n})
}

// --- Recategorize ---

func (s *Server) recategorize(c *gin.Context) {
	var body convert.RecategorizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, errs.ErrInvalidInput)
		return
	}
	res, err := s.recat.Recategorize(c.Request.Context(), body.LineID, body.AccountID, body.AccountName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToRecategorizeResponse(res))
}

// --- Connection ---

func (s *Server) status(c *gin.Context) {
	conn, err := s.conns.GetActiveConnection(c.Request.Context())
	if err != nil && !errors.Is(err, errs.ErrNotConnected) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToConnectionStatus(conn))
}

func (s *Server) connect(c *gin.Context) {
	u, ok := UserFromCtx(c.Request.Context())
	if !ok {
		writeError(c, errs.ErrUnauthorized)
		return
	}
	state, err := s.auth.IssueState(u.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": s.conns.AuthCodeURL(state)})
}

// callback completes OAuth. The signed state stands in for the session, which the
// browser does not carry on the redirect from Intuit.
func (s *Server) callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		writeError(c, errs.ErrUnauthorized)
		return
	}
	userID, err := s.auth.VerifyState(c.Query("state"))
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := s.conns.Connect(c.Request.Context(), c.Query("code"), c.Query("realmId"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if s.ConnectedRedirect != "" {
		c.Redirect(http.StatusFound, s.ConnectedRedirect)
		return
	}
	c.JSON(http.StatusOK, convert.ToConnectionStatus(conn))
}

// --- Sync log ---

func (s *Server) syncLog(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := s.synclog.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": convert.ToSyncLogEntries(entries)})
}

// --- Lines ---

func (s *Server) lines(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	lines, err := s.imports.ListLines(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.LinesResponse{Success: true, Lines: convert.ToLineEntries(lines)})
}
