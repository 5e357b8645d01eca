package checkout

import (
	"context"
	"log"
	"sync"
	"time"
)

// Store holds live checkout sessions in memory. Sessions are transient per
// the data model; losing them on restart only means the user re-enters
// checkout.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
}

func NewStore(idleTTL time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
	}
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// RunJanitor sweeps on a fixed tick: idle sessions are dropped (abandonment
// needs no explicit teardown), and pending gateway payments past their
// deadline are pushed back to a retryable Review state instead of waiting
// forever on a modal that will never resolve.
func (st *Store) RunJanitor(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (st *Store) sweep() {
	now := time.Now()

	st.mu.Lock()
	var kept []*Session
	for id, s := range st.sessions {
		if now.Sub(s.UpdatedAt) > st.idleTTL {
			delete(st.sessions, id)
			continue
		}
		kept = append(kept, s)
	}
	st.mu.Unlock()

	for _, s := range kept {
		s.mu.Lock()
		if s.PendingIntent != nil && now.After(s.PaymentDeadline) {
			log.Printf("payment attempt expired for session %v, returning to review", s.ID)
			s.PendingIntent = nil
			s.LastError = "payment attempt timed out, please try again"
			s.UpdatedAt = now
		}
		s.mu.Unlock()
	}
}
