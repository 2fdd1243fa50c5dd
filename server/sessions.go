package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/nifki/host"
	"github.com/chazu/nifki/vm"
)

// Session is a machine kept alive between TickSession calls. Only the
// MachineWorker goroutine touches Machine, Keys and Output.
type Session struct {
	ID      string
	Machine *vm.Machine
	Keys    *host.KeyState
	Output  *vm.Recorder
	Created time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed.Before(cutoff)
}

// SessionStore manages running sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limit    int
}

// NewSessionStore creates a session store holding at most limit sessions;
// zero means no limit.
func NewSessionStore(limit int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		limit:    limit,
	}
}

// Create registers a session for m. It returns nil when the store is
// full.
func (s *SessionStore) Create(m *vm.Machine, keys *host.KeyState, out *vm.Recorder) *Session {
	now := time.Now()
	session := &Session{
		ID:       uuid.New().String(),
		Machine:  m,
		Keys:     keys,
		Output:   out,
		Created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.sessions) >= s.limit {
		return nil
	}
	s.sessions[session.ID] = session
	return session
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		session.touch()
	}
	return session, ok
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, session := range s.sessions {
		if session.idleSince(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Infof("swept %d idle sessions", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
