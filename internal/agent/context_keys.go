package agent

import (
	"context"

	"github.com/codeisdemode/cephiq-lite/pkg/models"
)

type sessionCtxKey struct{}

// WithSession stores the active session on the context so tools can recover
// session-scoped state (compaction status, history) without threading it
// through every call signature.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, session)
}

// SessionFromContext retrieves the session stored by WithSession, if any.
func SessionFromContext(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionCtxKey{}).(*models.Session)
	return session
}
