package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/contextlens/contextlens/internal/core"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 15 * time.Minute
)

// PersistentCache is the optional second cache tier, normally backed by the store.
type PersistentCache interface {
	GetSearchCache(ctx context.Context, key string) (*Response, bool, error)
	SetSearchCache(ctx context.Context, key string, resp *Response, ttl time.Duration) error
}

// memoryCache is the in-process tier: size-bounded LRU with a uniform TTL.
type memoryCache struct {
	lru *expirable.LRU[string, Response]
	ttl time.Duration
}

func newMemoryCache(size int, ttl time.Duration) *memoryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &memoryCache{lru: expirable.NewLRU[string, Response](size, nil, ttl), ttl: ttl}
}

func (c *memoryCache) get(key string) (*Response, bool) {
	resp, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneResponse(&resp), true
}

func (c *memoryCache) set(key string, resp *Response) {
	c.lru.Add(key, *cloneResponse(resp))
}

func (c *memoryCache) len() int { return c.lru.Len() }

// cacheKey identifies a query by backend, normalized text, count and domain hint.
func cacheKey(backend string, q Query) string {
	parts := []string{
		backend,
		strings.ToLower(strings.Join(strings.Fields(q.Text), " ")),
		strconv.Itoa(q.Count),
	}
	if !q.Domain.IsZero() {
		parts = append(parts,
			strings.ToLower(q.Domain.Language),
			strings.ToLower(q.Domain.Framework),
			strings.ToLower(q.Domain.Subject))
	}
	return strings.Join(parts, "|")
}

func cloneResponse(resp *Response) *Response {
	out := *resp
	out.Results = append([]core.SearchResult(nil), resp.Results...)
	return &out
}
