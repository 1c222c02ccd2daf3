package mapping

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// VirAttrCache keeps virtual attribute values read from resources.
type VirAttrCache struct {
	lru *expirable.LRU[string, []string]
}

// NewVirAttrCache creates a cache holding up to size entries for ttl.
func NewVirAttrCache(size int, ttl time.Duration) *VirAttrCache {
	if size <= 0 {
		size = 5000
	}
	return &VirAttrCache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

func virKey(anyKey, schema string) string {
	return anyKey + "/" + schema
}

// Put stores the values of schema for anyKey.
func (c *VirAttrCache) Put(anyKey, schema string, values []string) {
	c.lru.Add(virKey(anyKey, schema), slices.Clone(values))
}

// Get returns the cached values of schema for anyKey.
func (c *VirAttrCache) Get(anyKey, schema string) ([]string, bool) {
	values, ok := c.lru.Get(virKey(anyKey, schema))
	if !ok {
		return nil, false
	}
	return slices.Clone(values), true
}

// Expire drops the cached values of schema for anyKey.
func (c *VirAttrCache) Expire(anyKey, schema string) {
	c.lru.Remove(virKey(anyKey, schema))
}

// Len returns the number of cached entries.
func (c *VirAttrCache) Len() int {
	return c.lru.Len()
}
