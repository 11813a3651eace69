package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val V
	exp time.Time
}

// TTL is a map whose entries expire a fixed time after they were set.
type TTL[K comparable, V any] struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[K]entry[V]
	now func() time.Time
}

func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{ttl: ttl, m: make(map[K]entry[V]), now: time.Now}
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	ent, ok := c.m[key]
	if !ok {
		return zero, false
	}
	if c.now().After(ent.exp) {
		delete(c.m, key)
		return zero, false
	}
	return ent.val, true
}

func (c *TTL[K, V]) Set(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
}

func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// Purge drops expired entries and returns how many are left.
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, ent := range c.m {
		if now.After(ent.exp) {
			delete(c.m, k)
		}
	}
	return len(c.m)
}

func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
