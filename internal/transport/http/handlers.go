package http

import (
	"encoding/json"
	"log"
	"net/http"

	"drivingschool-console/internal/app"
	"drivingschool-console/internal/auth"
	"drivingschool-console/internal/domain"
)

// AuthHandler serves the landing page login modal. A successful login issues the
// session cookie that every screen connection must carry.
type AuthHandler struct {
	sessions *auth.Sessions
	authn    auth.Authenticator
}

func NewAuthHandler(sessions *auth.Sessions, authn auth.Authenticator) *AuthHandler {
	return &AuthHandler{sessions: sessions, authn: authn}
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool          `json:"success"`
	Phone   string        `json:"phone"`
	User    domain.Record `json:"user,omitempty"`
}

type failureResponse struct {
	Success bool                `json:"success"`
	Kind    domain.ErrorKind    `json:"kind"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, domain.NewError(domain.KindValidationFailed, 0, "invalid login payload"))
		return
	}
	id, res, err := h.sessions.Login(r.Context(), h.authn, req.Phone, req.Password)
	if err != nil {
		writeFailure(w, domain.AsError(err))
		return
	}
	if previous, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Logout(r.Context(), previous.Value); err != nil {
			log.Printf("drop previous session: %v", err)
		}
	}
	setSessionCookie(w, r, id)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Phone: res.Phone, User: res.User})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
			log.Printf("logout: %v", err)
			writeFailure(w, domain.NewError(domain.KindUnknown, 0, ""))
			return
		}
	}
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ResourcesHandler lists the screens for navigation.
func ResourcesHandler(console *app.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, console.Resources())
	}
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func writeFailure(w http.ResponseWriter, err *domain.Error) {
	writeJSON(w, statusFor(err), failureResponse{
		Kind:    err.Kind,
		Message: err.Message,
		Errors:  err.Fields,
	})
}

func statusFor(err *domain.Error) int {
	switch err.Kind {
	case domain.KindAuthRequired, domain.KindSessionExpired:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNetworkUnreachable, domain.KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

// NewMux wires every console route. Screens are only served to logged in sessions.
func NewMux(console *app.Console, authHandler *AuthHandler, redirects *Redirects) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Healthz)
	mux.HandleFunc("/ws", RequireSession(authHandler.sessions, NewWSHandler(console, redirects).ServeWS))
	mux.HandleFunc("/login", authHandler.Login)
	mux.HandleFunc("/logout", authHandler.Logout)
	mux.HandleFunc("/resources", ResourcesHandler(console))
	return mux
}
