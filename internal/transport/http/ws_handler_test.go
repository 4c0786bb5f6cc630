package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"drivingschool-console/internal/api"
	"drivingschool-console/internal/app"
	"drivingschool-console/internal/auth"
	"drivingschool-console/internal/domain"
	"drivingschool-console/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketScreenFlow(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	server := newConsoleServer(t, backend.URL, time.Minute)
	defer server.Close()
	jar := login(t, server, "0700")

	conn, _, err := dial(server, "/ws?resource=notes&screen=s1", jar, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	opened := readUntil(t, conn, func(m message) bool { return m.Type == "opened" })
	if opened.Payload["screen"] != "s1" {
		t.Fatalf("expected screen s1, got %v", opened.Payload)
	}
	readUntil(t, conn, func(m message) bool { return m.Type == "view" && m.Payload["totalItems"] == float64(3) })

	send(t, conn, map[string]any{"type": "search", "payload": map[string]any{"query": "park"}})
	view := readUntil(t, conn, func(m message) bool { return m.Type == "view" && m.Payload["query"] == "park" })
	if view.Payload["totalItems"] != float64(1) {
		t.Fatalf("expected one match, got %v", view.Payload["totalItems"])
	}

	send(t, conn, map[string]any{"type": "confirmDelete"})
	failure := readUntil(t, conn, func(m message) bool { return m.Type == "error" })
	if failure.Payload["message"] != domain.ErrNoPendingDelete.Error() {
		t.Fatalf("unexpected error %v", failure.Payload)
	}

	send(t, conn, map[string]any{"type": "create", "payload": map[string]any{"fields": map[string]any{"title": "x"}}})
	view = readUntil(t, conn, func(m message) bool { return m.Type == "view" && m.Payload["fieldErrors"] != nil })
	fieldErrors := view.Payload["fieldErrors"].(map[string]any)
	if _, ok := fieldErrors["content"]; !ok {
		t.Fatalf("expected content field error, got %v", fieldErrors)
	}

	send(t, conn, map[string]any{"type": "bogus"})
	failure = readUntil(t, conn, func(m message) bool { return m.Type == "error" })
	if failure.Payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error %v", failure.Payload)
	}
}

func TestWebSocketRejectsUnknownResource(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	server := newConsoleServer(t, backend.URL, time.Minute)
	defer server.Close()
	jar := login(t, server, "0700")

	_, resp, err := dial(server, "/ws?resource=invoices", jar, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func TestWebSocketRequiresOwnSession(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	server := newConsoleServer(t, backend.URL, time.Minute)
	defer server.Close()
	jar := login(t, server, "0700")

	foreign := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := dial(server, "/ws?resource=notes", nil, foreign)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session cookie, got %v %v", resp, err)
	}

	forged, _ := cookiejar.New(nil)
	forged.SetCookies(mustURL(t, server.URL), []*http.Cookie{{Name: SessionCookie, Value: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}})
	_, resp, err = dial(server, "/ws?resource=notes", forged, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unknown session, got %v %v", resp, err)
	}

	_, resp, err = dial(server, "/ws?resource=notes", jar, foreign)
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a cross-origin upgrade, got %v %v", resp, err)
	}

	conn, _, err := dial(server, "/ws?resource=notes", jar, nil)
	if err != nil {
		t.Fatalf("dial with session: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, func(m message) bool { return m.Type == "view" && m.Payload["totalItems"] == float64(3) })
}

func TestWebSocketRedirectsExpiredSession(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	server := newConsoleServer(t, backend.URL, 50*time.Millisecond)
	defer server.Close()
	// The backend hands this phone a token it later rejects.
	jar := login(t, server, "0799")

	conn, _, err := dial(server, "/ws?resource=notes", jar, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	view := readUntil(t, conn, func(m message) bool { return m.Type == "view" && m.Payload["error"] != nil })
	if kind := view.Payload["error"].(map[string]any)["kind"]; kind != string(domain.KindSessionExpired) {
		t.Fatalf("expected session expired, got %v", kind)
	}
	redirect := readUntil(t, conn, func(m message) bool { return m.Type == "redirect" })
	if redirect.Payload["url"] != "/login" {
		t.Fatalf("expected redirect to /login, got %v", redirect.Payload)
	}

	_, resp, err := dial(server, "/ws?resource=notes", jar, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired session must not open screens, got %v %v", resp, err)
	}
}

func TestLoginLogoutAndResources(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	server := newConsoleServer(t, backend.URL, time.Minute)
	defer server.Close()

	resp := postJSON(t, http.DefaultClient, server.URL+"/login", map[string]string{"phone": "0700", "password": "wrong"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad credentials, got %d", resp.StatusCode)
	}
	if len(resp.Cookies()) != 0 {
		t.Fatalf("failed login must not issue a session cookie")
	}
	resp.Body.Close()

	jar := login(t, server, "0700")

	res, err := http.Get(server.URL + "/resources")
	if err != nil {
		t.Fatalf("get resources: %v", err)
	}
	var resources []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resources); err != nil {
		t.Fatalf("decode resources: %v", err)
	}
	res.Body.Close()
	if len(resources) != len(domain.Catalog()) || resources[0]["name"] != "users" {
		t.Fatalf("unexpected resources %v", resources)
	}

	resp = postJSON(t, &http.Client{Jar: jar}, server.URL+"/logout", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", resp.StatusCode)
	}
	if _, resp, err := dial(server, "/ws?resource=notes", jar, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected logout to end the session, got %v %v", resp, err)
	}
}

type message struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(message) bool) message {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg message
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatalf("expected message not received")
	return message{}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func postJSON(t *testing.T, client *http.Client, target string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := client.Post(target, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", target, err)
	}
	return resp
}

// login signs in through the console and returns the jar holding its session cookie.
func login(t *testing.T, server *httptest.Server, phone string) http.CookieJar {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	resp := postJSON(t, &http.Client{Jar: jar}, server.URL+"/login", map[string]string{"phone": phone, "password": "secret"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	if len(jar.Cookies(mustURL(t, server.URL))) == 0 {
		t.Fatalf("login did not set a session cookie")
	}
	return jar
}

func dial(server *httptest.Server, path string, jar http.CookieJar, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 5 * time.Second}
	return dialer.Dial("ws"+server.URL[len("http"):]+path, header)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func newConsoleServer(t *testing.T, backendURL string, redirectDelay time.Duration) *httptest.Server {
	t.Helper()
	client := api.NewClient(backendURL, 5*time.Second)
	redirects := NewRedirects("/login")
	sessions := auth.NewSessions(func(string) auth.StateStore { return memory.NewStateStore() }, redirectDelay, redirects.Notify)
	console := app.NewConsole(domain.Catalog(), memory.NewScreenStore(), app.Deps{Remote: client})
	return httptest.NewServer(NewMux(console, NewAuthHandler(sessions, client), redirects))
}

// newBackend fakes the driving-school REST API.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":1,"title":"Parking","content":"Parallel parking"},
			{"id":2,"title":"Lanes","content":"Changing lanes"},
			{"id":3,"title":"Signals","content":"Hand signals"}
		]}`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		token := "tok"
		if req["phone"] == "0799" {
			token = "revoked"
		}
		_, _ = w.Write([]byte(`{"token":"` + token + `","user":{"name":"Admin"}}`))
	})
	return httptest.NewServer(mux)
}
