package httpserver

import (
	"context"

	"github.com/and161185/ovis-qbsync/internal/model"
)

type ctxKey string

const userKey ctxKey = "qbsync.user"

// WithUser stores the verified admin in context.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromCtx fetches the verified admin from context.
func UserFromCtx(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
