package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"drivingschool-console/internal/auth"
	"drivingschool-console/internal/domain"
	"drivingschool-console/internal/infra/memory"
)

// sharedStores hands out one store per id and outlives a Sessions value, like redis does.
type sharedStores struct {
	mu     sync.Mutex
	stores map[string]*memory.StateStore
}

func (s *sharedStores) store(id string) auth.StateStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stores == nil {
		s.stores = make(map[string]*memory.StateStore)
	}
	st, ok := s.stores[id]
	if !ok {
		st = memory.NewStateStore()
		s.stores[id] = st
	}
	return st
}

func TestSessionsAreIsolatedPerID(t *testing.T) {
	ctx := context.Background()
	stores := &sharedStores{}
	sessions := auth.NewSessions(stores.store, time.Second, nil)
	authn := fakeAuthenticator{result: domain.LoginResult{Token: "tok"}}

	first, _, err := sessions.Login(ctx, authn, "0700", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, _, err := sessions.Login(ctx, authn, "0711", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct session ids")
	}

	if _, ok := sessions.Lookup(ctx, first); !ok {
		t.Fatalf("expected first session to be valid")
	}
	for _, id := range []string{"", "default", "../../etc/passwd", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if _, ok := sessions.Lookup(ctx, id); ok {
			t.Fatalf("lookup of %q must fail", id)
		}
	}

	if err := sessions.Logout(ctx, first); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := sessions.Lookup(ctx, first); ok {
		t.Fatalf("logged out session must be invalid")
	}
	if _, ok := sessions.Lookup(ctx, second); !ok {
		t.Fatalf("logging out one client must not affect another")
	}
}

func TestSessionsFailedLoginIssuesNothing(t *testing.T) {
	sessions := auth.NewSessions((&sharedStores{}).store, time.Second, nil)
	id, _, err := sessions.Login(context.Background(), fakeAuthenticator{err: domain.NewValidationError(map[string][]string{"password": {"wrong"}})}, "0700", "pw")
	if err == nil || id != "" {
		t.Fatalf("expected failed login without id, got %q %v", id, err)
	}
}

func TestSessionsSurviveRestartThroughStore(t *testing.T) {
	ctx := context.Background()
	stores := &sharedStores{}
	id, _, err := auth.NewSessions(stores.store, time.Second, nil).Login(ctx, fakeAuthenticator{result: domain.LoginResult{Token: "tok"}}, "0700", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	restarted := auth.NewSessions(stores.store, time.Second, nil)
	session, ok := restarted.Lookup(ctx, id)
	if !ok {
		t.Fatalf("expected persisted session to be found")
	}
	if token, err := session.Token(ctx); err != nil || token != "tok" {
		t.Fatalf("unexpected token %q %v", token, err)
	}
}

func TestSessionsRedirectNamesTheSession(t *testing.T) {
	ctx := context.Background()
	redirected := make(chan string, 1)
	sessions := auth.NewSessions((&sharedStores{}).store, 10*time.Millisecond, func(id string) {
		redirected <- id
	})
	id, _, err := sessions.Login(ctx, fakeAuthenticator{result: domain.LoginResult{Token: "tok"}}, "0700", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	session, _ := sessions.Lookup(ctx, id)
	session.OnUnauthorized(ctx)

	select {
	case got := <-redirected:
		if got != id {
			t.Fatalf("expected redirect for %s, got %s", id, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("redirect not delivered")
	}
	if _, ok := sessions.Lookup(ctx, id); ok {
		t.Fatalf("expired session must be invalid")
	}
}
