// Package cache defines the cache backend shared by every process
// participating in request deduplication, plus an in-memory implementation
// for single-process deployments.
package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

const defaultMaxCacheSize = 10000

// Cache is a general purpose key-value cache with per-entry TTLs. Entries are
// serialized strings. Implementations must be safe for concurrent use; when a
// deployment spans multiple processes, all of them must share the same backing
// store for the deduplication guarantee to hold.
type Cache interface {

	// Get returns the value for the given key, if it exists and has not expired.
	Get(key string) (string, bool)

	// Set stores a value for the key with the given TTL.
	Set(key string, value string, ttl time.Duration)

	// Has reports whether an unexpired entry exists for the key.
	Has(key string) bool

	// Forget removes the entry for the key, if any.
	Forget(key string)

	// Stop cleans resources.
	Stop()
}

// Specific implementation

type InMemoryCache struct {
	ccache      *ccache.Cache[string]
	maxElements int64
	closeOnce   *sync.Once
}

type InMemoryCacheOpt func(i *InMemoryCache)

func WithMaxCacheSize(maxElements int64) InMemoryCacheOpt {
	return func(i *InMemoryCache) {
		i.maxElements = maxElements
	}
}

var _ Cache = (*InMemoryCache)(nil)

func NewInMemoryCache(opts ...InMemoryCacheOpt) *InMemoryCache {
	c := &InMemoryCache{
		maxElements: defaultMaxCacheSize,
		closeOnce:   &sync.Once{},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.ccache = ccache.New(ccache.Configure[string]().MaxSize(c.maxElements))
	return c
}

func (i *InMemoryCache) Get(key string) (string, bool) {
	item := i.ccache.Get(key)
	if item == nil || item.Expired() {
		return "", false
	}

	return item.Value(), true
}

func (i *InMemoryCache) Set(key string, value string, ttl time.Duration) {
	i.ccache.Set(key, value, ttl)
}

func (i *InMemoryCache) Has(key string) bool {
	_, ok := i.Get(key)
	return ok
}

func (i *InMemoryCache) Forget(key string) {
	i.ccache.Delete(key)
}

func (i *InMemoryCache) Stop() {
	i.closeOnce.Do(func() {
		i.ccache.Stop()
	})
}
