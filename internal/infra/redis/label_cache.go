package redis

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"drivingschool-console/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LabelLoader fetches the id -> label map behind a lookup.
type LabelLoader interface {
	LoadLabels(ctx context.Context, lookup domain.Lookup) (map[string]string, error)
}

// LabelCache shares lookup maps between console replicas and falls back to a loader on cache miss.
// Labels are stored as: HSET console:labels:{endpoint}:{labelField} {id} {label}
type LabelCache struct {
	client *redis.Client
	loader LabelLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewLabelCache(client *redis.Client, loader LabelLoader, ttl time.Duration) *LabelCache {
	return &LabelCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LabelCache) Labels(ctx context.Context, lookup domain.Lookup) (map[string]string, error) {
	key := c.labelsKey(lookup)

	labels, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(labels) > 0 {
		return labels, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		labels, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(labels) > 0 {
			return labels, nil
		}

		labels, err = c.loader.LoadLabels(ctx, lookup)
		if err != nil {
			return nil, err
		}
		if len(labels) == 0 {
			return labels, nil
		}

		fields := make(map[string]interface{}, len(labels))
		for id, label := range labels {
			fields[id] = label
		}
		pipe := c.client.Pipeline()
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("cache labels %s: %v", key, err)
		}
		return labels, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]string), nil
}

// Invalidate drops every cached map loaded from endpoint.
func (c *LabelCache) Invalidate(ctx context.Context, endpoint string) {
	iter := c.client.Scan(ctx, 0, "console:labels:"+endpoint+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("invalidate labels %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("scan labels %s: %v", endpoint, err)
	}
}

func (c *LabelCache) labelsKey(lookup domain.Lookup) string {
	return "console:labels:" + lookup.Endpoint + ":" + lookup.LabelField
}

func (c *LabelCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
