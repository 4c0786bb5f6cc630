package app_test

import (
	"context"
	"errors"
	"testing"

	"drivingschool-console/internal/app"
	"drivingschool-console/internal/domain"
	"drivingschool-console/internal/infra/memory"
)

func TestOpenFetchesAndReusesScreen(t *testing.T) {
	remote := newFakeRemote()
	remote.set("/bookings", numbered("b", "Booking", 4))
	console := newTestConsole(remote, nil)

	ctrl, screenID, err := console.Open(context.Background(), viewer, "", "Bookings")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if screenID == "" {
		t.Fatalf("expected generated screen id")
	}
	if view := ctrl.View(); view.TotalItems != 4 || view.PageSize != 30 {
		t.Fatalf("expected fetched bookings, got %+v", pageOf(view))
	}

	again, _, err := console.Open(context.Background(), viewer, screenID, "bookings")
	if err != nil || again != ctrl {
		t.Fatalf("expected same screen, err=%v", err)
	}
	if remote.listCalls() != 1 {
		t.Fatalf("reopening must not refetch, got %d fetches", remote.listCalls())
	}

	found, err := console.Screen(viewer.ID, screenID, "bookings")
	if err != nil || found != ctrl {
		t.Fatalf("screen lookup failed: %v", err)
	}
	console.Close(viewer.ID, screenID, "bookings")
	if _, err := console.Screen(viewer.ID, screenID, "bookings"); !errors.Is(err, domain.ErrScreenNotFound) {
		t.Fatalf("expected closed screen, got %v", err)
	}
}

func TestOpenUnknownResource(t *testing.T) {
	console := newTestConsole(newFakeRemote(), nil)
	if _, _, err := console.Open(context.Background(), viewer, "s1", "invoices"); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("expected unknown resource, got %v", err)
	}
}

func TestOpenWarmStartsFromSnapshot(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	if err := snapshots.Save(ctx, "exams", numbered("e", "Exam", 3)); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	remote := newFakeRemote()
	remote.listErr = domain.NewError(domain.KindNetworkUnreachable, 0, "")
	console := newTestConsole(remote, snapshots)

	ctrl, _, err := console.Open(ctx, viewer, "s1", "exams")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	view := ctrl.View()
	if !view.Stale || view.TotalItems != 3 {
		t.Fatalf("expected stale snapshot, got stale=%v items=%d", view.Stale, view.TotalItems)
	}
	if view.Error == nil || view.Error.Kind != domain.KindNetworkUnreachable {
		t.Fatalf("expected network error in view, got %+v", view.Error)
	}

	remote.listErr = nil
	remote.set("/exams", numbered("e", "Exam", 5))
	if err := ctrl.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if view := ctrl.View(); view.Stale || view.TotalItems != 5 {
		t.Fatalf("expected fresh data, got stale=%v items=%d", view.Stale, view.TotalItems)
	}
	saved, ok, _ := snapshots.Load(ctx, "exams")
	if !ok || len(saved) != 5 {
		t.Fatalf("expected snapshot updated to 5 records, got %d", len(saved))
	}
}

func TestScreensAreScopedToTheirViewer(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.set("/notes", numbered("n", "Note", 2))
	console := newTestConsole(remote, nil)

	alice := &fakeSession{token: "alice"}
	mine, _, err := console.Open(ctx, app.Viewer{ID: "a", Session: alice}, "s1", "notes")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	theirs, _, err := console.Open(ctx, app.Viewer{ID: "b", Session: &fakeSession{}}, "s1", "notes")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if mine == theirs {
		t.Fatalf("viewers must not share a screen")
	}
	if view := theirs.View(); view.TotalItems != 0 || view.Error == nil || view.Error.Kind != domain.KindAuthRequired {
		t.Fatalf("viewer without token must not see records, got %+v", theirs.View())
	}
	if _, err := console.Screen("b", "s1", "notes"); err != nil {
		t.Fatalf("screen lookup: %v", err)
	}
	if _, err := console.Screen("c", "s1", "notes"); !errors.Is(err, domain.ErrScreenNotFound) {
		t.Fatalf("expected other viewer to miss, got %v", err)
	}
	if mine.View().TotalItems != 2 {
		t.Fatalf("expected records for the logged in viewer")
	}
}

func TestAPILabelsUsesSessionFromContext(t *testing.T) {
	remote := newFakeRemote()
	remote.set("/questions", []domain.Record{{"id": "q1", "name": "Roundabouts"}})
	loader := app.NewAPILabels(remote, nil)
	lookup := domain.Lookup{Key: "question_id", Endpoint: "/questions", LabelField: "name"}

	if _, err := loader.LoadLabels(context.Background(), lookup); !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("expected auth required without a session, got %v", err)
	}
	labels, err := loader.LoadLabels(app.WithSession(context.Background(), &fakeSession{token: "t"}), lookup)
	if err != nil || labels["q1"] != "Roundabouts" {
		t.Fatalf("expected labels through the bound session, got %v %v", labels, err)
	}
}

func TestWithPageSizesOverridesCatalogue(t *testing.T) {
	resources := app.WithPageSizes(domain.Catalog(), map[string]int{"users": 10, "notes": 0})
	users, _ := domain.FindResource(resources, "users")
	notes, _ := domain.FindResource(resources, "notes")
	if users.PageSize != 10 || notes.PageSize != 25 {
		t.Fatalf("unexpected page sizes users=%d notes=%d", users.PageSize, notes.PageSize)
	}
	original, _ := domain.FindResource(domain.Catalog(), "users")
	if original.PageSize != 30 {
		t.Fatalf("catalogue must not change")
	}
}

func TestAPILabelsMapsIDsToLabels(t *testing.T) {
	remote := newFakeRemote()
	remote.set("/questions", []domain.Record{
		{"id": "q1", "name": "Roundabouts"},
		{"id": "q2", "text": "Who yields?"},
		{"id": "q3"},
	})
	loader := app.NewAPILabels(remote, &fakeSession{token: "t"})

	labels, err := loader.LoadLabels(context.Background(), domain.Lookup{Key: "question_id", Endpoint: "/questions", LabelField: "name"})
	if err != nil {
		t.Fatalf("load labels: %v", err)
	}
	if labels["q1"] != "Roundabouts" || labels["q2"] != "Who yields?" {
		t.Fatalf("unexpected labels %v", labels)
	}
	if _, ok := labels["q3"]; ok {
		t.Fatalf("records without a label should be skipped")
	}
}

var viewer = app.Viewer{ID: "v1"}

func newTestConsole(remote *fakeRemote, snapshots app.SnapshotStore) *app.Console {
	return app.NewConsole(domain.Catalog(), memory.NewScreenStore(), app.Deps{
		Remote:    remote,
		Session:   &fakeSession{token: "t"},
		Snapshots: snapshots,
	})
}
