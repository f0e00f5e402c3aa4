package session

import (
	"context"

	"github.com/traego/oncesession/pkg/utils"
)

// WithSession attaches s to ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, utils.SessionCtx, s)
}

// FromContext returns the session attached by the middleware
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(utils.SessionCtx).(*Session)
	return s, ok && s != nil
}
