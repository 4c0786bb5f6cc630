package auth

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"drivingschool-console/internal/domain"
)

// Client-state keys written at login and cleared at logout.
const (
	KeyAuthToken       = "authToken"
	KeyIsAuthenticated = "isAuthenticated"
	KeyUserPhone       = "userPhone"
	KeyUserData        = "userData"

	keyLegacyToken     = "token"
	keyLegacyUserToken = "userToken"
)

// tokenKeys is the lookup order for the bearer token.
var tokenKeys = []string{KeyAuthToken, keyLegacyToken, keyLegacyUserToken}

// StateStore persists client state (in memory, Redis, or a file).
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, phone, password string) (domain.LoginResult, error)
}

// Session is the explicit authentication context handed to every screen.
type Session struct {
	store         StateStore
	redirectDelay time.Duration
	redirect      func()
	afterFunc     func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	pending *time.Timer
}

// NewSession builds a session. redirect is called once, redirectDelay after an unauthorized response.
func NewSession(store StateStore, redirectDelay time.Duration, redirect func()) *Session {
	if redirect == nil {
		redirect = func() {}
	}
	return &Session{
		store:         store,
		redirectDelay: redirectDelay,
		redirect:      redirect,
		afterFunc:     time.AfterFunc,
	}
}

// Token returns the stored bearer token, or domain.ErrAuthRequired when there is none.
func (s *Session) Token(ctx context.Context) (string, error) {
	for _, key := range tokenKeys {
		value, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok && value != "" {
			return value, nil
		}
	}
	return "", domain.ErrAuthRequired
}

// Authenticated reports whether a token is stored.
func (s *Session) Authenticated(ctx context.Context) bool {
	_, err := s.Token(ctx)
	return err == nil
}

// Login authenticates and persists the client state.
func (s *Session) Login(ctx context.Context, authn Authenticator, phone, password string) (domain.LoginResult, error) {
	res, err := authn.Login(ctx, phone, password)
	if err != nil {
		return domain.LoginResult{}, err
	}
	userData := []byte("{}")
	if res.User != nil {
		if userData, err = json.Marshal(res.User); err != nil {
			return domain.LoginResult{}, err
		}
	}
	if err := s.store.Set(ctx, map[string]string{
		KeyAuthToken:       res.Token,
		KeyIsAuthenticated: "true",
		KeyUserPhone:       res.Phone,
		KeyUserData:        string(userData),
	}); err != nil {
		return domain.LoginResult{}, err
	}
	s.cancelRedirect()
	return res, nil
}

// Logout clears every stored key.
func (s *Session) Logout(ctx context.Context) error {
	s.cancelRedirect()
	return s.store.Clear(ctx)
}

// OnUnauthorized drops the stored session and schedules the redirect to the login entry point.
// Calls while a redirect is pending do not schedule another one.
func (s *Session) OnUnauthorized(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		log.Printf("clear session: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return
	}
	s.pending = s.afterFunc(s.redirectDelay, func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.redirect()
	})
}

// RedirectPending reports whether a redirect is scheduled.
func (s *Session) RedirectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Session) cancelRedirect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}
