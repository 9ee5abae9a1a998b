package conversation

import "sync"

// Store holds active sessions. Implementations must be safe for
// concurrent use and must not share answer maps with callers.
type Store interface {
	Get(key Key) (Session, bool)
	Put(session Session)
	Delete(key Key) bool
	// DeleteIf removes the session only while match holds for its
	// current value, checked atomically with the removal.
	DeleteIf(key Key, match func(Session) bool) bool
	List() []Session
	Len() int
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[Key]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[Key]Session)}
}

func (s *MemoryStore) Get(key Key) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return session.clone(), true
}

func (s *MemoryStore) Put(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Key] = session.clone()
}

func (s *MemoryStore) Delete(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[key]
	delete(s.sessions, key)
	return ok
}

func (s *MemoryStore) DeleteIf(key Key, match func(Session) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key]
	if !ok || !match(session.clone()) {
		return false
	}
	delete(s.sessions, key)
	return true
}

func (s *MemoryStore) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.clone())
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
