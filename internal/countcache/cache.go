// Package countcache memoizes count_tokens responses so that repeated
// requests for the same message payload don't pay for a round trip to an
// external counting endpoint, per spec §6's `countTokensApiUrl` delegation.
package countcache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultSize bounds the cache to a fixed number of distinct payloads;
// entries beyond it are evicted least-recently-used.
const defaultSize = 1024

// Cache memoizes a token-count estimate by the SHA-256 of the request
// body that produced it.
type Cache struct {
	lru *lru.Cache[string, int64]
}

// New builds a Cache with room for size entries (defaultSize if size <= 0).
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultSize
	}
	c, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Key hashes body into a cache key.
func Key(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Get returns a cached count for key, if present.
func (c *Cache) Get(key string) (int64, bool) {
	return c.lru.Get(key)
}

// Put records count for key, evicting the least-recently-used entry if
// the cache is full.
func (c *Cache) Put(key string, count int64) {
	c.lru.Add(key, count)
}
