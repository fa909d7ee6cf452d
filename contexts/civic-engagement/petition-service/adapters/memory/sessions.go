package memory

import (
	"context"
	"sync"

	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

// Sessions is a static token table for local runs and tests.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]ports.Session
}

var _ ports.SessionVerifier = (*Sessions)(nil)

func NewSessions() *Sessions {
	return &Sessions{sessions: map[string]ports.Session{}}
}

func (s *Sessions) Register(token string, session ports.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session
}

func (s *Sessions) VerifySession(ctx context.Context, token string) (ports.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return ports.Session{}, domainerrors.ErrUnauthenticated
	}
	return session, nil
}
