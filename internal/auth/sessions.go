package auth

import (
	"context"
	"sync"
	"time"

	"drivingschool-console/internal/domain"
	"github.com/google/uuid"
)

// Sessions keeps one Session per browser. Each session id gets its own state store, so
// the token of one client is never visible to another.
type Sessions struct {
	newStore      func(id string) StateStore
	redirectDelay time.Duration
	redirect      func(id string)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions builds the registry. newStore returns the state store of one session id;
// redirect is called with the id once that session's redirect delay has passed.
func NewSessions(newStore func(id string) StateStore, redirectDelay time.Duration, redirect func(id string)) *Sessions {
	if redirect == nil {
		redirect = func(string) {}
	}
	return &Sessions{
		newStore:      newStore,
		redirectDelay: redirectDelay,
		redirect:      redirect,
		sessions:      make(map[string]*Session),
	}
}

// Login authenticates under a freshly generated session id. Ids are never reused across
// logins, so a client cannot plant one for somebody else.
func (s *Sessions) Login(ctx context.Context, authn Authenticator, phone, password string) (string, domain.LoginResult, error) {
	id := uuid.NewString()
	session := s.build(id)
	res, err := session.Login(ctx, authn, phone, password)
	if err != nil {
		return "", domain.LoginResult{}, err
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	return id, res, nil
}

// Lookup returns the session for id while it holds a token. Sessions persisted by an
// earlier process (redis, file) are picked up again.
func (s *Sessions) Lookup(ctx context.Context, id string) (*Session, bool) {
	if !validID(id) {
		return nil, false
	}
	s.mu.Lock()
	session, known := s.sessions[id]
	s.mu.Unlock()
	if !known {
		session = s.build(id)
	}
	if !session.Authenticated(ctx) {
		return nil, false
	}
	if known {
		return session, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, true
	}
	s.sessions[id] = session
	return session, true
}

// Logout clears the state of id and forgets it.
func (s *Sessions) Logout(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		session = s.build(id)
	}
	return session.Logout(ctx)
}

func (s *Sessions) build(id string) *Session {
	return NewSession(s.newStore(id), s.redirectDelay, func() { s.redirect(id) })
}

// validID accepts canonical UUIDs only; ids end up in store keys and file names.
func validID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}
