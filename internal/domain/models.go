package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one entity instance as returned by the remote API.
type Record map[string]any

// ID renders the record's id field as a string. Numeric ids are printed without exponent.
func (r Record) ID() string {
	return r.String("id")
}

// String renders a field for display and search. Missing or null fields render as "".
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// Clone returns a shallow copy so display-only fields never leak into the working collection.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Lookup describes an optional enrichment: Key on the primary record refers to a record
// fetched from Endpoint whose LabelField is shown instead of the raw foreign key.
type Lookup struct {
	Key        string `json:"key"`
	Endpoint   string `json:"endpoint"`
	LabelField string `json:"labelField"`
}

// LabelKey is the display-only field the label is written to.
func (l Lookup) LabelKey() string {
	return l.Key + "_label"
}

// Fallback is the label shown when the lookup has no entry for id.
func (l Lookup) Fallback(id string) string {
	if id == "" {
		return ""
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "#" + id
}

// Resource configures one admin screen.
type Resource struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Endpoint         string   `json:"-"`
	SearchFields     []string `json:"-"`
	PageSize         int      `json:"pageSize"`
	RequiredOnCreate []string `json:"-"`
	RequiredOnUpdate []string `json:"-"`
	Lookup           *Lookup  `json:"-"`
}

// RequiredFor returns the fields that must be present for a create or an update.
func (r Resource) RequiredFor(create bool) []string {
	if create || r.RequiredOnUpdate == nil {
		return r.RequiredOnCreate
	}
	return r.RequiredOnUpdate
}

// Catalog returns the built-in screens in navigation order.
func Catalog() []Resource {
	return []Resource{
		{
			Name: "users", Title: "Users", Endpoint: "/users", PageSize: 30,
			SearchFields:     []string{"name", "phone", "email", "status"},
			RequiredOnCreate: []string{"name", "phone"},
		},
		{
			Name: "questions", Title: "Questions", Endpoint: "/questions", PageSize: 25,
			SearchFields:     []string{"name", "text", "status"},
			RequiredOnCreate: []string{"text", "image_url"},
			RequiredOnUpdate: []string{"text"},
		},
		{
			Name: "answers", Title: "Answers", Endpoint: "/answers", PageSize: 25,
			SearchFields:     []string{"text", "status", "question_id_label"},
			RequiredOnCreate: []string{"text", "question_id"},
			Lookup:           &Lookup{Key: "question_id", Endpoint: "/questions", LabelField: "name"},
		},
		{
			Name: "notes", Title: "Notes", Endpoint: "/notes", PageSize: 25,
			SearchFields:     []string{"title", "content", "status"},
			RequiredOnCreate: []string{"title", "content"},
		},
		{
			Name: "exams", Title: "Exams", Endpoint: "/exams", PageSize: 25,
			SearchFields:     []string{"name", "status", "date"},
			RequiredOnCreate: []string{"name"},
		},
		{
			Name: "bookings", Title: "Bookings", Endpoint: "/bookings", PageSize: 30,
			SearchFields:     []string{"user_name", "phone", "status", "date"},
			RequiredOnCreate: []string{"user_id", "date"},
		},
		{
			Name: "payments", Title: "Payments", Endpoint: "/payments", PageSize: 30,
			SearchFields:     []string{"user_name", "amount", "status", "method"},
			RequiredOnCreate: []string{"user_id", "amount"},
		},
		{
			Name: "apks", Title: "APK releases", Endpoint: "/apks", PageSize: 25,
			SearchFields:     []string{"version", "name", "status"},
			RequiredOnCreate: []string{"version", "url"},
		},
		{
			Name: "settings", Title: "Settings", Endpoint: "/settings", PageSize: 25,
			SearchFields:     []string{"key", "value"},
			RequiredOnCreate: []string{"key", "value"},
		},
	}
}

// FindResource looks a resource up by name, case-insensitively.
func FindResource(resources []Resource, name string) (Resource, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// ViewError is the user-facing part of an error.
type ViewError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// View is the derived view model a hosting view layer renders for one screen.
type View struct {
	Resource       string              `json:"resource"`
	Records        []Record            `json:"records"`
	Query          string              `json:"query"`
	CurrentPage    int                 `json:"currentPage"`
	PageSize       int                 `json:"pageSize"`
	TotalPages     int                 `json:"totalPages"`
	TotalItems     int                 `json:"totalItems"`
	Loading        bool                `json:"loading"`
	Error          *ViewError          `json:"error,omitempty"`
	FieldErrors    map[string][]string `json:"fieldErrors,omitempty"`
	SuccessMessage string              `json:"successMessage,omitempty"`
	Empty          bool                `json:"empty"`
	EmptyMessage   string              `json:"emptyMessage,omitempty"`
	PendingDelete  string              `json:"pendingDelete,omitempty"`
	Creating       bool                `json:"creating"`
	Saving         bool                `json:"saving"`
	Deleting       bool                `json:"deleting"`
	Stale          bool                `json:"stale"`
	Redirecting    bool                `json:"redirecting"`
}

// LoginResult is what a successful login yields.
type LoginResult struct {
	Token string `json:"token"`
	Phone string `json:"phone"`
	User  Record `json:"user,omitempty"`
}
