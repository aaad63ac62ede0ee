package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is one uploaded dataset and its validation outcome. Sessions are
// immutable once stored.
type Session struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Table      *dataset.Table `json:"-"`
	Validation dataset.Report `json:"validation"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// IsExpired checks if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Store keeps sessions in memory with a TTL.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewStore creates a store and starts its cleanup loop. Call Close to stop it.
func NewStore(ttl time.Duration, cleanupEvery time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go s.cleanup(cleanupEvery)
	}
	return s
}

func (s *Store) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Close stops the cleanup loop.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

// Create stores a new session for a validated table.
func (s *Store) Create(source string, table *dataset.Table, report dataset.Report) *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Source:     source,
		Table:      table,
		Validation: report,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get returns a live session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.IsExpired() {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// Size returns the number of stored sessions, expired or not.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Stats returns store statistics.
func (s *Store) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.sessions)
	expired := 0
	for _, sess := range s.sessions {
		if sess.IsExpired() {
			expired++
		}
	}

	return map[string]interface{}{
		"total_sessions":   total,
		"expired_sessions": expired,
		"active_sessions":  total - expired,
		"ttl_seconds":      s.ttl.Seconds(),
	}
}
