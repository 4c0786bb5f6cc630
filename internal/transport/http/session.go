package http

import (
	"context"
	"net/http"

	"drivingschool-console/internal/auth"
	"drivingschool-console/internal/domain"
)

// SessionCookie carries the browser's session id. The token itself stays server side.
const SessionCookie = "console_session"

type boundSession struct {
	id      string
	session *auth.Session
}

type sessionCtxKey struct{}

// RequireSession rejects requests without a cookie naming a logged in session and hands
// the session to next through the request context.
func RequireSession(sessions *auth.Sessions, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			writeFailure(w, domain.NewError(domain.KindAuthRequired, 0, "session cookie required"))
			return
		}
		session, ok := sessions.Lookup(r.Context(), cookie.Value)
		if !ok {
			writeFailure(w, domain.NewError(domain.KindAuthRequired, 0, "invalid or expired session"))
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, boundSession{id: cookie.Value, session: session})
		next(w, r.WithContext(ctx))
	}
}

func sessionFrom(ctx context.Context) (boundSession, bool) {
	b, ok := ctx.Value(sessionCtxKey{}).(boundSession)
	return b, ok
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
