package domain

import (
	"context"
	"time"
)

// SessionState is the lifecycle position of a visitor's customer session
type SessionState string

const (
	StateUnauthenticated    SessionState = "unauthenticated"
	StateAuthenticating     SessionState = "authenticating"
	StateCompletingCallback SessionState = "completing_callback"
	StateAuthenticated      SessionState = "authenticated"
)

// SessionEvent is published whenever a session changes state or error
type SessionEvent struct {
	SessionID     string       `json:"sessionId"`
	State         SessionState `json:"state"`
	Authenticated bool         `json:"isAuthenticated"`
	Error         string       `json:"error,omitempty"`
	OccurredAt    time.Time    `json:"occurredAt"`
}

type contextKey string

const sessionIDKey contextKey = "session_id"

// WithSessionID stores the visitor session id in the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionIDFromContext returns the visitor session id, or "" when absent
func GetSessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}
