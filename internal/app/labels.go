package app

import (
	"context"

	"drivingschool-console/internal/domain"
)

type sessionKey struct{}

// WithSession binds the session whose token lookup loads run with.
func WithSession(ctx context.Context, session SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// APILabels loads lookup maps straight from the REST API. It backs the label caches.
// Loads use the session bound to ctx and fall back to the one given at construction.
type APILabels struct {
	remote  Remote
	session SessionContext
}

func NewAPILabels(remote Remote, session SessionContext) *APILabels {
	return &APILabels{remote: remote, session: session}
}

// LoadLabels fetches the lookup endpoint and maps each record id to its label field,
// falling back to "text" for records without one.
func (l *APILabels) LoadLabels(ctx context.Context, lookup domain.Lookup) (map[string]string, error) {
	session := l.session
	if bound, ok := ctx.Value(sessionKey{}).(SessionContext); ok {
		session = bound
	}
	if session == nil {
		return nil, domain.ErrAuthRequired
	}
	token, err := session.Token(ctx)
	if err != nil {
		return nil, err
	}
	records, err := l.remote.List(ctx, token, lookup.Endpoint)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(records))
	for _, r := range records {
		id := r.ID()
		if id == "" {
			continue
		}
		label := r.String(lookup.LabelField)
		if label == "" {
			label = r.String("text")
		}
		if label != "" {
			labels[id] = label
		}
	}
	return labels, nil
}
