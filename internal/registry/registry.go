package registry

import (
	"sync"

	"github.com/scythianladder/scythian-ladder-backend/internal/entity"
)

// SessionRegistry is the in-process cache of active sessions keyed by code.
// It is write-through: the state machine updates the store first, then the
// registry, then broadcasts. It also owns the per-code mutexes that
// serialize all mutations of a single session.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*entity.GameSession

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*entity.GameSession),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutation lock for one code and returns its release
// func. Lock entries are kept for the registry's lifetime; freeing one
// while another goroutine holds it would break the single-writer guarantee.
func (that *SessionRegistry) Lock(code string) func() {
	that.locksMu.Lock()
	lock, ok := that.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		that.locks[code] = lock
	}
	that.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get returns a copy of the cached session, so callers cannot mutate the
// cache outside the lock.
func (that *SessionRegistry) Get(code string) (*entity.GameSession, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[code]
	if !ok {
		return nil, false
	}

	return session.Clone(), true
}

func (that *SessionRegistry) Put(session *entity.GameSession) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.sessions[session.Code] = session.Clone()
}

func (that *SessionRegistry) Delete(code string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.sessions, code)
}

// Codes returns the codes currently cached, for sweeps and shutdown.
func (that *SessionRegistry) Codes() []string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	codes := make([]string, 0, len(that.sessions))
	for code := range that.sessions {
		codes = append(codes, code)
	}

	return codes
}
