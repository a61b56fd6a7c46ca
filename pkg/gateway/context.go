package gateway

import (
	"context"

	"github.com/harun/chatguard/pkg/session"
)

type ctxKey string

const sessionKey ctxKey = "session"

func withSession(ctx context.Context, sess session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session snapshot stored by RequireSession.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	if ctx == nil {
		return session.Session{}, false
	}
	sess, ok := ctx.Value(sessionKey).(session.Session)
	return sess, ok
}
