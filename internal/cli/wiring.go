package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"drivingschool-console/internal/api"
	"drivingschool-console/internal/app"
	"drivingschool-console/internal/auth"
	"drivingschool-console/internal/config"
	"drivingschool-console/internal/domain"
	"drivingschool-console/internal/infra/file"
	"drivingschool-console/internal/infra/memory"
	pgstore "drivingschool-console/internal/infra/postgres"
	redisstore "drivingschool-console/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runtime holds the collaborators built from config for one command.
type runtime struct {
	cfg     config.Config
	client  *api.Client
	session *auth.Session
	redis   *redis.Client
	pool    *pgxpool.Pool
}

// cliNamespace is the state namespace shared by the one-shot commands.
const cliNamespace = "default"

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api base url not configured")
	}

	rt := &runtime{cfg: cfg}
	rt.client = api.NewClient(cfg.API.BaseURL, config.Duration(cfg.API.Timeout, 15*time.Second))

	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		rt.pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.close()
			return nil, err
		}
	}

	store, err := rt.cliStateStore(ctx)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.session = auth.NewSession(store, rt.redirectDelay(), nil)
	return rt, nil
}

func (rt *runtime) redirectDelay() time.Duration {
	return config.Duration(rt.cfg.Session.RedirectDelay, 1500*time.Millisecond)
}

// stateStores returns the factory for per-namespace client state stores.
func (rt *runtime) stateStores() (func(namespace string) auth.StateStore, error) {
	switch rt.cfg.Session.Store {
	case "memory":
		return func(string) auth.StateStore { return memory.NewStateStore() }, nil
	case "redis":
		if rt.redis == nil {
			return nil, fmt.Errorf("session store redis needs redis.addr")
		}
		ttl := config.Duration(rt.cfg.Redis.TTL, 0)
		return func(namespace string) auth.StateStore {
			return redisstore.NewStateStore(rt.redis, namespace, ttl)
		}, nil
	case "", "file":
		path := rt.cfg.Session.File
		if path == "" {
			path = ".console-session.yaml"
		}
		return func(namespace string) auth.StateStore {
			if namespace == cliNamespace {
				return file.NewStateStore(path)
			}
			return file.NewStateStore(path + "." + namespace)
		}, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", rt.cfg.Session.Store)
	}
}

func (rt *runtime) cliStateStore(ctx context.Context) (auth.StateStore, error) {
	stores, err := rt.stateStores()
	if err != nil {
		return nil, err
	}
	store := stores(cliNamespace)

	if authToken != "" {
		// An explicit token only lives for this process.
		seeded := memory.NewStateStore()
		if err := seeded.Set(ctx, map[string]string{auth.KeyAuthToken: authToken}); err != nil {
			return nil, err
		}
		store = seeded
	}
	return store, nil
}

// sessions builds the per-browser session registry used by serve.
func (rt *runtime) sessions(redirect func(id string)) (*auth.Sessions, error) {
	stores, err := rt.stateStores()
	if err != nil {
		return nil, err
	}
	return auth.NewSessions(stores, rt.redirectDelay(), redirect), nil
}

func (rt *runtime) console() *app.Console {
	deps := app.Deps{
		Remote:     rt.client,
		Session:    rt.session,
		SuccessTTL: config.Duration(rt.cfg.Console.SuccessTTL, 3*time.Second),
	}

	loader := app.NewAPILabels(rt.client, rt.session)
	lookupTTL := config.Duration(rt.cfg.Console.LookupTTL, 5*time.Minute)
	if rt.redis != nil {
		deps.Labels = redisstore.NewLabelCache(rt.redis, loader, lookupTTL)
	} else {
		deps.Labels = memory.NewLabelCache(loader, lookupTTL)
	}

	if rt.pool != nil {
		deps.Snapshots = pgstore.NewSnapshotStore(rt.pool)
	} else {
		deps.Snapshots = memory.NewSnapshotStore()
	}

	resources := app.WithPageSizes(domain.Catalog(), rt.cfg.Console.PageSizes)
	return app.NewConsole(resources, memory.NewScreenStore(), deps)
}

func (rt *runtime) close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
}
