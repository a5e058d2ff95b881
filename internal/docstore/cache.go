package docstore

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through decorator over a Store. Get serves from Redis when
// possible; Save and Delete invalidate. Cache failures degrade silently to
// the underlying store: a broken cache must never fail a read or a write.
type Cache struct {
	next   Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *log.Logger
}

// NewCache wraps next with a Redis document cache.
func NewCache(next Store, client redis.UniversalClient, ttl time.Duration, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(id string) string {
	return "custodian:doc:" + id
}

func (c *Cache) Get(ctx context.Context, id string) (Document, error) {
	if raw, err := c.client.Get(ctx, cacheKey(id)).Bytes(); err == nil {
		var flat map[string]any
		if err := json.Unmarshal(raw, &flat); err == nil {
			return FromFlat(flat), nil
		}
		// Unreadable entry: drop it and fall through to the store.
		c.client.Del(ctx, cacheKey(id))
	} else if err != redis.Nil {
		c.logger.Printf("document cache read %s: %v", id, err)
	}

	doc, err := c.next.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	c.fill(ctx, doc)
	return doc, nil
}

func (c *Cache) fill(ctx context.Context, doc Document) {
	raw, err := json.Marshal(doc.Flat())
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(doc.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Printf("document cache fill %s: %v", doc.ID, err)
	}
}

func (c *Cache) invalidate(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Printf("document cache invalidate %s: %v", id, err)
	}
}

func (c *Cache) Save(ctx context.Context, doc Document) (Document, error) {
	saved, err := c.next.Save(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	c.invalidate(ctx, saved.ID)
	return saved, nil
}

func (c *Cache) Delete(ctx context.Context, doc Document) error {
	if err := c.next.Delete(ctx, doc); err != nil {
		return err
	}
	c.invalidate(ctx, doc.ID)
	return nil
}

// Queries always hit the underlying store; view results are not cached.
func (c *Cache) Query(ctx context.Context, view, key string, includeDocs bool) ([]Row, error) {
	return c.next.Query(ctx, view, key, includeDocs)
}

func (c *Cache) AllIDs(ctx context.Context) ([]string, error) {
	return c.next.AllIDs(ctx)
}
