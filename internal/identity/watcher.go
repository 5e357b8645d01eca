package identity

import (
	"context"
	"errors"
	"time"
)

var ErrAwaitTimeout = errors.New("timed out waiting for session")

// Watcher waits for a device token to become authenticated. It prefers the
// provider's change notification and falls back to polling at a fixed
// interval, bounded by maxWait, to tolerate sign-in flows that complete via
// an external redirect without a reliable push event.
type Watcher struct {
	provider Provider
	token    string
	interval time.Duration
	maxWait  time.Duration
}

func NewWatcher(provider Provider, token string, interval, maxWait time.Duration) *Watcher {
	return &Watcher{
		provider: provider,
		token:    token,
		interval: interval,
		maxWait:  maxWait,
	}
}

// Await blocks until the token has an active session, then returns it.
// Returns ErrAwaitTimeout when maxWait elapses without one.
func (w *Watcher) Await(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, w.maxWait)
	defer cancel()

	// Session may already be there.
	if s, err := w.check(ctx); err == nil {
		return s, nil
	} else if !errors.Is(err, ErrNoSession) {
		return nil, err
	}

	var changes <-chan struct{}
	if notifier, ok := w.provider.(Notifier); ok {
		changes = notifier.SessionChanges(w.token)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-changes:
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrAwaitTimeout
			}
			return nil, ctx.Err()
		}

		s, err := w.check(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNoSession) {
			return nil, err
		}
	}
}

func (w *Watcher) check(ctx context.Context) (*Session, error) {
	return w.provider.CurrentSession(ctx, w.token)
}
