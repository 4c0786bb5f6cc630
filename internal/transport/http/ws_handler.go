package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"drivingschool-console/internal/app"
	"drivingschool-console/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	console   *app.Console
	redirects *Redirects
	upgrader  websocket.Upgrader
}

// NewWSHandler serves screens over websockets. The upgrader keeps gorilla's default
// origin check, so only pages served from the console's own host may connect.
func NewWSHandler(console *app.Console, redirects *Redirects) *WSHandler {
	return &WSHandler{
		console:   console,
		redirects: redirects,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type pagePayload struct {
	Page int `json:"page"`
}

type recordPayload struct {
	ID     string        `json:"id"`
	Fields domain.Record `json:"fields"`
}

type dismissPayload struct {
	// What is "error", "success" or empty for both.
	What string `json:"what"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type openedPayload struct {
	Screen   string `json:"screen"`
	Resource string `json:"resource"`
}

type redirectPayload struct {
	URL string `json:"url"`
}

// ServeWS upgrades HTTP requests to websockets and binds the connection to one screen of
// the caller's session. It must run behind RequireSession.
// The server pushes a "view" message after every state change of the screen and a
// "redirect" message once the session expired.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	bound, ok := sessionFrom(r.Context())
	if !ok {
		writeFailure(w, domain.ErrAuthRequired)
		return
	}
	resource := r.URL.Query().Get("resource")
	screenID := r.URL.Query().Get("screen")
	if resource == "" {
		http.Error(w, "missing resource", http.StatusBadRequest)
		return
	}
	if _, ok := domain.FindResource(h.console.Resources(), resource); !ok {
		http.Error(w, domain.ErrUnknownResource.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Watch before opening: the initial fetch may already expire the session.
	redirects, stopRedirects := h.redirects.watch(bound.id)
	defer stopRedirects()

	ctx := r.Context()
	viewer := app.Viewer{ID: bound.id, Session: bound.session}
	screen, screenID, err := h.console.Open(ctx, viewer, screenID, resource)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel := screen.Subscribe()
	defer h.console.Close(viewer.ID, screenID, screen.Resource().Name)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "opened", Payload: openedPayload{Screen: screenID, Resource: screen.Resource().Name}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "view", Payload: view}:
				case <-closeSignals:
					return
				}
			case url := <-redirects:
				select {
				case send <- outboundMessage[any]{Type: "redirect", Payload: redirectPayload{URL: url}}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(ctx, screen, inbound); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

var errUnsupportedMessage = errors.New("unsupported message type")

// dispatch applies one client action. Classified failures are already part of the pushed
// view, so only the rest is returned for an "error" message.
func (h *WSHandler) dispatch(ctx context.Context, screen *app.Controller, inbound inboundMessage) error {
	var err error
	switch inbound.Type {
	case "search":
		var p searchPayload
		if err := decodePayload(inbound.Payload, &p); err != nil {
			return err
		}
		screen.Search(p.Query)
	case "page":
		var p pagePayload
		if err := decodePayload(inbound.Payload, &p); err != nil {
			return err
		}
		screen.GoToPage(p.Page)
	case "refresh":
		err = screen.Refresh(ctx)
	case "create":
		var p recordPayload
		if err := decodePayload(inbound.Payload, &p); err != nil {
			return err
		}
		err = screen.Create(ctx, p.Fields)
	case "update":
		var p recordPayload
		if err := decodePayload(inbound.Payload, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("missing id")
		}
		err = screen.Update(ctx, p.ID, p.Fields)
	case "delete":
		var p recordPayload
		if err := decodePayload(inbound.Payload, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("missing id")
		}
		screen.RequestDelete(p.ID)
	case "confirmDelete":
		err = screen.ConfirmDelete(ctx)
	case "cancelDelete":
		screen.CancelDelete()
	case "dismiss":
		var p dismissPayload
		_ = decodePayload(inbound.Payload, &p)
		if p.What != "success" {
			screen.DismissError()
		}
		if p.What != "error" {
			screen.DismissSuccess()
		}
	default:
		return errUnsupportedMessage
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return nil
	}
	return err
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}
