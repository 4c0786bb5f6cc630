package http

import "sync"

// Redirects fans a session's expiry redirect out to every websocket that session has open.
type Redirects struct {
	url string

	mu       sync.Mutex
	watchers map[string]map[chan string]struct{}
}

func NewRedirects(url string) *Redirects {
	if url == "" {
		url = "/"
	}
	return &Redirects{url: url, watchers: make(map[string]map[chan string]struct{})}
}

// Notify tells every open screen of sessionID to go to the login entry point.
func (r *Redirects) Notify(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.watchers[sessionID] {
		select {
		case ch <- r.url:
		default:
			// one pending redirect is enough
		}
	}
}

func (r *Redirects) watch(sessionID string) (<-chan string, func()) {
	ch := make(chan string, 1)
	r.mu.Lock()
	if r.watchers[sessionID] == nil {
		r.watchers[sessionID] = make(map[chan string]struct{})
	}
	r.watchers[sessionID][ch] = struct{}{}
	r.mu.Unlock()

	stop := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers[sessionID], ch)
		if len(r.watchers[sessionID]) == 0 {
			delete(r.watchers, sessionID)
		}
	}
	return ch, stop
}
