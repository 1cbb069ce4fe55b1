// Package service contains application services for the QuickBooks sync.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/ovis-qbsync/internal/errs"
	"github.com/and161185/ovis-qbsync/internal/model"
	"github.com/and161185/ovis-qbsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// StateTTL bounds how long an OAuth consent round trip may take.
const StateTTL = 10 * time.Minute

const stateAudience = "qbo-connect"

// AuthService verifies admin sessions and signs OAuth state.
type AuthService interface {
	// VerifyAdmin checks a session bearer token and requires the admin role.
	VerifyAdmin(ctx context.Context, bearer string) (*model.User, error)
	// IssueState returns a short-lived signed state naming the admin who started OAuth.
	IssueState(userID uuid.UUID) (string, error)
	// VerifyState returns the user id carried by a state issued by IssueState.
	VerifyState(state string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users      repository.UserRepository
	sessionKey []byte
	stateKey   []byte
	now        func() time.Time
}

// NewAuthService constructs AuthService. sessionKey verifies session JWTs issued by the
// auth provider; stateKey signs OAuth state.
func NewAuthService(users repository.UserRepository, sessionKey, stateKey []byte) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, sessionKey: sessionKey, stateKey: stateKey, now: time.Now}
}

// VerifyAdmin: verify HS256, map sub to a users row, require role admin.
func (s *AuthServiceImpl) VerifyAdmin(ctx context.Context, bearer string) (*model.User, error) {
	sub, err := s.parse(bearer, s.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	authID, err := uuid.FromString(sub.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	u, err := s.users.GetByAuthID(ctx, authID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrForbidden
		}
		return nil, err
	}
	if u.Role != model.RoleAdmin {
		return nil, errs.ErrForbidden
	}
	return u, nil
}

func (s *AuthServiceImpl) IssueState(userID uuid.UUID) (string, error) {
	nonce, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{stateAudience},
		ID:        nonce.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateKey)
}

func (s *AuthServiceImpl) VerifyState(state string) (uuid.UUID, error) {
	claims, err := s.parse(state, s.stateKey, jwt.WithAudience(stateAudience))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: state: %v", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: state subject", errs.ErrUnauthorized)
	}
	return id, nil
}

func (s *AuthServiceImpl) parse(tok string, key []byte, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, errors.New("missing token")
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, append(opts, jwt.WithoutClaimsValidation())...)
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	v := jwt.NewValidator(append(opts, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))...)
	if err := v.Validate(&claims); err != nil {
		return nil, errors.New("token expired or not valid yet")
	}
	return &claims, nil
}
