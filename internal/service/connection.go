package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/lock"
	"github.com/and161185/ovis-qbsync/internal/metrics"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// RefreshSkew is how close to expiry an access token may get before it is refreshed.
	RefreshSkew = 5 * time.Minute
	// RefreshTokenTTL is the fixed lifetime recorded for a newly issued refresh token.
	RefreshTokenTTL = 100 * 24 * time.Hour
	// DefaultAccessTTL applies when the token endpoint omits expires_in.
	DefaultAccessTTL = time.Hour

	refreshLockTTL = 30 * time.Second
)

// TokenRefresher talks to the Intuit OAuth endpoints.
type TokenRefresher interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ConnectionService owns the company-wide QuickBooks connection and its tokens.
type ConnectionService interface {
	// GetActiveConnection returns the connected row or errs.ErrNotConnected.
	GetActiveConnection(ctx context.Context) (*model.Connection, error)
	// EnsureFreshToken refreshes the access token when it expires within RefreshSkew.
	EnsureFreshToken(ctx context.Context, conn *model.Connection) (*model.Connection, error)
	// AuthCodeURL returns the consent URL carrying state.
	AuthCodeURL(state string) string
	// Connect exchanges an authorization code and stores the new connection.
	Connect(ctx context.Context, code, realmID string, userID uuid.UUID) (*model.Connection, error)
	// MarkSynced stamps the connection's last successful sync.
	MarkSynced(ctx context.Context, id uuid.UUID) error
}

type ConnectionServiceImpl struct {
	repo    repository.ConnectionRepository
	tokens  TokenRefresher
	locks   lock.Locker
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewConnectionService constructs ConnectionService. m may be nil.
func NewConnectionService(repo repository.ConnectionRepository, tokens TokenRefresher, locks lock.Locker, log *zap.Logger, m *metrics.Metrics) *ConnectionServiceImpl {
	return &ConnectionServiceImpl{repo: repo, tokens: tokens, locks: locks, log: log, metrics: m, now: time.Now}
}

func (s *ConnectionServiceImpl) GetActiveConnection(ctx context.Context) (*model.Connection, error) {
	c, err := s.repo.GetActive(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotConnected
	}
	return c, err
}

func (s *ConnectionServiceImpl) needsRefresh(c *model.Connection) bool {
	return c.AccessTokenExpiresAt.Sub(s.now()) < RefreshSkew
}

// EnsureFreshToken returns conn untouched while its token has RefreshSkew or more left.
// Otherwise refreshes are serialized per connection; a caller that waited on the lock
// re-reads the row and reuses a refresh that completed meanwhile.
func (s *ConnectionServiceImpl) EnsureFreshToken(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if !s.needsRefresh(conn) {
		return conn, nil
	}

	lease, err := s.locks.Obtain(ctx, lock.RefreshKey(conn.ID.String()), refreshLockTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh lock: %w", err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Warn("refresh lock release failed", zap.Error(rerr))
		}
	}()

	cur, err := s.repo.Get(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("reload connection: %w", err)
	}
	if cur.Status != model.ConnectionConnected {
		return nil, errs.ErrReconnectRequired
	}
	if !s.needsRefresh(cur) {
		s.metrics.TokenRefresh("skipped")
		return cur, nil
	}

	tok, err := s.tokens.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		s.metrics.TokenRefresh("failed")
		s.log.Warn("token refresh failed", zap.String("realm", cur.RealmID), zap.Error(err))
		if serr := s.repo.SetStatus(ctx, cur.ID, model.ConnectionExpired); serr != nil {
			s.log.Error("mark connection expired", zap.Error(serr))
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrReconnectRequired, err)
	}

	ts := s.tokenSet(tok, cur.RefreshToken)
	if err := s.repo.UpdateTokens(ctx, cur.ID, ts); err != nil {
		s.metrics.TokenRefresh("failed")
		return nil, fmt.Errorf("store refreshed tokens: %w", err)
	}
	s.metrics.TokenRefresh("ok")
	s.log.Info("access token refreshed",
		zap.String("realm", cur.RealmID),
		zap.Time("expires_at", ts.AccessTokenExpiresAt),
	)

	cur.AccessToken = ts.AccessToken
	cur.RefreshToken = ts.RefreshToken
	cur.AccessTokenExpiresAt = ts.AccessTokenExpiresAt
	cur.RefreshTokenExpiresAt = ts.RefreshTokenExpiresAt
	return cur, nil
}

// tokenSet computes expiries from the local clock; prevRefresh is kept when none was issued.
func (s *ConnectionServiceImpl) tokenSet(tok *oauth2.Token, prevRefresh string) model.TokenSet {
	now := s.now()
	ttl := DefaultAccessTTL
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			ttl = time.Duration(v) * time.Second
		}
	default:
		if !tok.Expiry.IsZero() {
			if d := tok.Expiry.Sub(now); d > 0 {
				ttl = d.Round(time.Second)
			}
		}
	}
	rt := tok.RefreshToken
	if rt == "" {
		rt = prevRefresh
	}
	return model.TokenSet{
		AccessToken:           tok.AccessToken,
		RefreshToken:          rt,
		AccessTokenExpiresAt:  now.Add(ttl),
		RefreshTokenExpiresAt: now.Add(RefreshTokenTTL),
	}
}

func (s *ConnectionServiceImpl) AuthCodeURL(state string) string {
	return s.tokens.AuthCodeURL(state)
}

// Connect supersedes any previously connected row.
func (s *ConnectionServiceImpl) Connect(ctx context.Context, code, realmID string, userID uuid.UUID) (*model.Connection, error) {
	if code == "" || realmID == "" {
		return nil, fmt.Errorf("%w: code/realmId", errs.ErrInvalidInput)
	}
	tok, err := s.tokens.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	ts := s.tokenSet(tok, "")
	c := &model.Connection{
		RealmID:               realmID,
		AccessToken:           ts.AccessToken,
		RefreshToken:          ts.RefreshToken,
		AccessTokenExpiresAt:  ts.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: ts.RefreshTokenExpiresAt,
		Status:                model.ConnectionConnected,
		ConnectedBy:           userID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("quickbooks connected", zap.String("realm", realmID), zap.String("by", userID.String()))
	return c, nil
}

func (s *ConnectionServiceImpl) MarkSynced(ctx context.Context, id uuid.UUID) error {
	return s.repo.TouchLastSync(ctx, id)
}

// rejectedToken turns a QuickBooks 401 into errs.ErrReconnectRequired so the caller is
// told to reconnect. The original error stays in the chain.
func rejectedToken(err error) error {
	if errors.Is(err, errs.ErrUnauthorized) && !errors.Is(err, errs.ErrReconnectRequired) {
		return fmt.Errorf("%w: %w", errs.ErrReconnectRequired, err)
	}
	return err
}
