package identity

import (
	"context"
	"errors"
	"time"
)

var ErrNoSession = errors.New("no active session")

// Session is an authenticated principal as reported by the identity provider.
type Session struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider resolves a device token to its current session.
// Returns ErrNoSession while the principal is anonymous.
type Provider interface {
	CurrentSession(ctx context.Context, token string) (*Session, error)
}

// Notifier is implemented by providers able to push session-change events.
// Providers that cannot guarantee timely notification (e.g. external-redirect
// sign-in flows) simply don't implement it and the watcher falls back to
// polling.
type Notifier interface {
	SessionChanges(token string) <-chan struct{}
}
