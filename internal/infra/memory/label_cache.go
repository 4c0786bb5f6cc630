package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"drivingschool-console/internal/domain"
	"golang.org/x/sync/singleflight"
)

// LabelLoader fetches the id -> label map behind a lookup (e.g., question names for answers).
type LabelLoader interface {
	LoadLabels(ctx context.Context, lookup domain.Lookup) (map[string]string, error)
}

// LabelCache caches lookup maps with TTL so every answers screen does not refetch questions.
type LabelCache struct {
	loader LabelLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedLabels
}

type cachedLabels struct {
	labels    map[string]string
	expiresAt time.Time
}

func NewLabelCache(loader LabelLoader, ttl time.Duration) *LabelCache {
	return &LabelCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedLabels),
	}
}

func (c *LabelCache) Labels(ctx context.Context, lookup domain.Lookup) (map[string]string, error) {
	key := cacheKey(lookup)
	if labels, ok := c.fresh(key); ok {
		return labels, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if labels, ok := c.fresh(key); ok {
			return labels, nil
		}

		labels, err := c.loader.LoadLabels(ctx, lookup)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedLabels{
			labels:    labels,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return labels, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]string), nil
}

// Invalidate drops every cached map loaded from endpoint.
func (c *LabelCache) Invalidate(_ context.Context, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if strings.HasPrefix(key, endpoint+"|") {
			delete(c.cache, key)
		}
	}
}

func (c *LabelCache) fresh(key string) (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.labels, true
}

func cacheKey(lookup domain.Lookup) string {
	return lookup.Endpoint + "|" + lookup.LabelField
}

func (c *LabelCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticLabelLoader serves fixed maps keyed by endpoint (useful for tests/demos).
type StaticLabelLoader struct {
	labels map[string]map[string]string
}

func NewStaticLabelLoader(labels map[string]map[string]string) *StaticLabelLoader {
	return &StaticLabelLoader{labels: labels}
}

func (l *StaticLabelLoader) LoadLabels(_ context.Context, lookup domain.Lookup) (map[string]string, error) {
	if labels, ok := l.labels[lookup.Endpoint]; ok {
		return labels, nil
	}
	return nil, domain.ErrNotFound
}
