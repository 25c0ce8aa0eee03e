package embedding

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

// EmbeddingCache keeps the most recently used vectors, keyed by a SHA-256
// digest of the embedded text so long descriptions are not held twice.
// Vectors are copied on the way in and out.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recent; values are *cached
	byKey    map[[sha256.Size]byte]*list.Element
}

type cached struct {
	key [sha256.Size]byte
	vec []float32
}

// NewEmbeddingCache returns a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: max(capacity, 1),
		order:    list.New(),
		byKey:    make(map[[sha256.Size]byte]*list.Element),
	}
}

// Get returns the vector cached for text and marks it recently used.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return cloneVec(el.Value.(*cached).vec), true
}

// Set caches vec for text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	key := sha256.Sum256([]byte(text))
	vec = cloneVec(vec)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok {
		el.Value.(*cached).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.byKey[key] = c.order.PushFront(&cached{key: key, vec: vec})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.byKey, last.Value.(*cached).key)
	}
}

// Len reports how many vectors are cached.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneVec(v []float32) []float32 {
	return append([]float32(nil), v...)
}
