package app

import (
	"context"
	"log"
	"time"

	"drivingschool-console/internal/domain"
	"github.com/google/uuid"
)

// Remote is the REST API the screens read from and write to.
type Remote interface {
	List(ctx context.Context, token, endpoint string) ([]domain.Record, error)
	Create(ctx context.Context, token, endpoint string, fields domain.Record) (string, error)
	Update(ctx context.Context, token, endpoint, id string, fields domain.Record) (string, error)
	Delete(ctx context.Context, token, endpoint, id string) (string, error)
}

// SessionContext is the authentication capability handed to every screen.
type SessionContext interface {
	Token(ctx context.Context) (string, error)
	OnUnauthorized(ctx context.Context)
}

// LabelSource resolves lookup labels (cache/backing API).
type LabelSource interface {
	Labels(ctx context.Context, lookup domain.Lookup) (map[string]string, error)
	Invalidate(ctx context.Context, endpoint string)
}

// SnapshotStore persists the last fetched collection per resource for warm starts.
type SnapshotStore interface {
	Load(ctx context.Context, resource string) ([]domain.Record, bool, error)
	Save(ctx context.Context, resource string, records []domain.Record) error
}

// ScreenRepository abstracts where open screens are kept.
type ScreenRepository interface {
	GetOrCreate(key string, create func() *Controller) (*Controller, bool)
	Get(key string) (*Controller, bool)
	DeleteIfIdle(key string)
}

// Deps are the collaborators shared by every screen. Labels and Snapshots are optional.
// Session is the default for viewers that bring none.
type Deps struct {
	Remote     Remote
	Session    SessionContext
	Labels     LabelSource
	Snapshots  SnapshotStore
	SuccessTTL time.Duration
}

// Console owns the resource catalogue and the open screens.
type Console struct {
	resources []domain.Resource
	screens   ScreenRepository
	deps      Deps
}

func NewConsole(resources []domain.Resource, screens ScreenRepository, deps Deps) *Console {
	return &Console{resources: resources, screens: screens, deps: deps}
}

// WithPageSizes returns a copy of resources with page sizes overridden by name.
func WithPageSizes(resources []domain.Resource, sizes map[string]int) []domain.Resource {
	out := make([]domain.Resource, len(resources))
	copy(out, resources)
	for i := range out {
		if size, ok := sizes[out[i].Name]; ok && size > 0 {
			out[i].PageSize = size
		}
	}
	return out
}

// Resources lists the screens available for navigation.
func (c *Console) Resources() []domain.Resource {
	out := make([]domain.Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// Viewer is the client a screen belongs to. Screens of different viewers never share state.
type Viewer struct {
	ID      string
	Session SessionContext
}

// Open returns the viewer's controller for a screen, creating it and running the initial
// fetch when the screen is new. An empty screenID gets a generated one.
func (c *Console) Open(ctx context.Context, viewer Viewer, screenID, resourceName string) (*Controller, string, error) {
	resource, ok := domain.FindResource(c.resources, resourceName)
	if !ok {
		return nil, "", domain.ErrUnknownResource
	}
	if screenID == "" {
		screenID = uuid.NewString()
	}

	ctrl, created := c.screens.GetOrCreate(screenKey(viewer.ID, resource.Name, screenID), func() *Controller {
		deps := c.deps
		if viewer.Session != nil {
			deps.Session = viewer.Session
		}
		return NewController(resource, deps)
	})
	if !created {
		return ctrl, screenID, nil
	}

	if c.deps.Snapshots != nil {
		records, found, err := c.deps.Snapshots.Load(ctx, resource.Name)
		if err != nil {
			log.Printf("load snapshot %s: %v", resource.Name, err)
		} else if found {
			ctrl.seed(records)
		}
	}
	// The fetch outcome is part of the view; the screen is usable either way.
	_ = ctrl.Refresh(ctx)
	return ctrl, screenID, nil
}

// Screen returns an already open screen.
func (c *Console) Screen(viewerID, screenID, resourceName string) (*Controller, error) {
	ctrl, ok := c.screens.Get(screenKey(viewerID, resourceName, screenID))
	if !ok {
		return nil, domain.ErrScreenNotFound
	}
	return ctrl, nil
}

// Close drops the screen once nobody watches it.
func (c *Console) Close(viewerID, screenID, resourceName string) {
	c.screens.DeleteIfIdle(screenKey(viewerID, resourceName, screenID))
}

func screenKey(viewerID, resource, screenID string) string {
	return viewerID + ":" + resource + ":" + screenID
}
