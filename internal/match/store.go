package match

import (
	"sync"

	"github.com/tempo-chess/tempo/internal/storage"
)

// Store is the live session registry: the single source of truth for a
// game's rules-state while this process holds it. Constructed at process
// start and injected, never ambient.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	byParticipant map[string]string
}

func NewStore() *Store {
	return &Store{
		sessions:      make(map[string]*Session),
		byParticipant: make(map[string]string),
	}
}

// Insert registers a live session. A sessionId maps to at most one live
// session, and a participant to at most one session, across the process.
func (s *Store) Insert(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Id]; ok {
		return storage.ErrAlreadyExists
	}
	if _, ok := s.byParticipant[session.White]; ok {
		return ErrAlreadyInSession
	}
	if _, ok := s.byParticipant[session.Black]; ok {
		return ErrAlreadyInSession
	}
	s.sessions[session.Id] = session
	s.byParticipant[session.White] = session.Id
	s.byParticipant[session.Black] = session.Id
	return nil
}

func (s *Store) Get(sessionId string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionId]
	return session, ok
}

// ForParticipant resolves the live session a participant is party to.
func (s *Store) ForParticipant(participantId string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionId, ok := s.byParticipant[participantId]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[sessionId]
	return session, ok
}

func (s *Store) Remove(sessionId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionId]
	if !ok {
		return
	}
	delete(s.sessions, sessionId)
	if s.byParticipant[session.White] == sessionId {
		delete(s.byParticipant, session.White)
	}
	if s.byParticipant[session.Black] == sessionId {
		delete(s.byParticipant, session.Black)
	}
}

// All snapshots the live sessions. Used by the reconciliation pass.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
