package domain

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// ErrorKind classifies failures the console reports to the user.
type ErrorKind string

const (
	KindAuthRequired       ErrorKind = "auth_required"
	KindSessionExpired     ErrorKind = "session_expired"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindValidationFailed   ErrorKind = "validation_failed"
	KindConflict           ErrorKind = "conflict"
	KindServerError        ErrorKind = "server_error"
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	KindUnknown            ErrorKind = "unknown"
)

var (
	// ErrAuthRequired is returned when no token is stored; the network is not called.
	ErrAuthRequired = &Error{Kind: KindAuthRequired, Message: "please log in first"}
	// ErrSessionExpired maps HTTP 401.
	ErrSessionExpired = &Error{Kind: KindSessionExpired, Message: "session expired, please log in again"}
	// ErrForbidden maps HTTP 403.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "you are not allowed to do this"}
	// ErrNotFound maps HTTP 404.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "resource not found"}
	// ErrValidationFailed is returned for local or HTTP 422 validation failures.
	ErrValidationFailed = &Error{Kind: KindValidationFailed, Message: "please fix the highlighted fields"}
	// ErrConflict maps HTTP 409.
	ErrConflict = &Error{Kind: KindConflict, Message: "a record with these values already exists"}
	// ErrServerError maps 5xx, unexpected 4xx and unreadable payloads.
	ErrServerError = &Error{Kind: KindServerError, Message: "the server could not process the request"}
	// ErrNetworkUnreachable is returned when a request got no response.
	ErrNetworkUnreachable = &Error{Kind: KindNetworkUnreachable, Message: "cannot reach the server, check your connection"}
	// ErrUnknown covers client-side failures before the call.
	ErrUnknown = &Error{Kind: KindUnknown, Message: "something went wrong"}

	// ErrBusy is returned when the same mutation is already in flight.
	ErrBusy = errors.New("another request is already in progress")
	// ErrNoPendingDelete is returned by ConfirmDelete without a prior RequestDelete.
	ErrNoPendingDelete = errors.New("no delete awaiting confirmation")
	// ErrUnknownResource is returned for screens outside the catalogue.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrScreenNotFound is returned when a screen id has not been opened.
	ErrScreenNotFound = errors.New("screen not found")
)

var sentinels = map[ErrorKind]*Error{
	KindAuthRequired:       ErrAuthRequired,
	KindSessionExpired:     ErrSessionExpired,
	KindForbidden:          ErrForbidden,
	KindNotFound:           ErrNotFound,
	KindValidationFailed:   ErrValidationFailed,
	KindConflict:           ErrConflict,
	KindServerError:        ErrServerError,
	KindNetworkUnreachable: ErrNetworkUnreachable,
	KindUnknown:            ErrUnknown,
}

// Error is a classified failure. Two errors match with errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Fields  map[string][]string
}

// NewError builds a classified error, defaulting the message to the kind's.
func NewError(kind ErrorKind, status int, message string) *Error {
	if message == "" {
		if s, ok := sentinels[kind]; ok {
			message = s.Message
		}
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// NewValidationError reports field-level failures.
func NewValidationError(fields map[string][]string) *Error {
	err := NewError(KindValidationFailed, 0, "")
	err.Fields = fields
	return err
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return e.Message + ": " + strings.Join(names, ", ")
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindForStatus maps an HTTP status to an error kind. 2xx statuses map to "".
func KindForStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized:
		return KindSessionExpired
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnprocessableEntity:
		return KindValidationFailed
	default:
		return KindServerError
	}
}

// AsError extracts the classified error, wrapping anything else as Unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewError(KindUnknown, 0, err.Error())
}
