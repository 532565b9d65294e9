package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Backend defines interface for a Backend
type Backend interface {
	Get(key string) (any, bool)
	Set(key string, value any) bool
	Delete(key string)
}

// ristrettoCacheBackend is a RistrettoCache implemenentation of Backend
type ristrettoCacheBackend struct {
	c       *ristretto.Cache[string, any]
	ttl     time.Duration
	sliding bool
}

// Get a value from the cache.  A hit on a sliding backend renews the entry TTL.
func (rcb *ristrettoCacheBackend) Get(key string) (any, bool) {
	v, ok := rcb.c.Get(key)
	if ok && rcb.sliding {
		rcb.c.SetWithTTL(key, v, 1, rcb.ttl)
		rcb.c.Wait()
	}
	return v, ok
}

// Set a value in the cache
func (rcb *ristrettoCacheBackend) Set(key string, value any) bool {
	ok := rcb.c.SetWithTTL(key, value, 1, rcb.ttl)
	rcb.c.Wait()
	return ok
}

// Delete a value from the cache
func (rcb *ristrettoCacheBackend) Delete(key string) {
	rcb.c.Del(key)
	rcb.c.Wait()
}

// NewRistrettoCacheBackend construct an instance of a ristrettoCacheBackend.
// A zero ttl stores entries without expiry.  When sliding is true each cache
// hit renews the entry lifetime, otherwise expiry is absolute from last write.
func NewRistrettoCacheBackend(ttl time.Duration, sliding bool) (*ristrettoCacheBackend, error) {
	cache, err := ristretto.NewCache(
		&ristretto.Config[string, any]{
			NumCounters: 1e7,
			MaxCost:     1 << 30,
			BufferItems: 64,
		})
	if err != nil {
		return nil, fmt.Errorf("error initialising ristretto cache: %w", err)
	}
	return &ristrettoCacheBackend{c: cache, ttl: ttl, sliding: sliding}, nil
}

// Cacheable makes a function cacheable by the given key
//
//nolint:ireturn
func Cacheable[V any](key string, fn func() (V, error), c Backend) (V, error) {
	var val V
	tmpVal, cacheHit := c.Get(key)
	if !cacheHit {
		retrievedVal, err := fn()
		if err != nil {
			return val, fmt.Errorf("error retrieving cacheable value for key %v: %w", key, err)
		}
		c.Set(key, retrievedVal)
		val = retrievedVal
	} else {
		val = tmpVal.(V)
	}
	return val, nil
}
