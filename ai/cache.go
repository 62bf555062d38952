package ai

import (
	"container/list"
	"context"
	"sync"

	"github.com/poiesic/ragpipe/core"
)

// EmbeddingCache is an LRU cache of embeddings keyed by content hash.
type EmbeddingCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewEmbeddingCache creates a cache holding at most capacity vectors.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func cacheKey(text string, inputType InputType) string {
	return core.ContentHash(string(inputType) + "\x00" + text)
}

// Get returns the cached embedding if present and marks it recently used.
func (c *EmbeddingCache) Get(text string, inputType InputType) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[cacheKey(text, inputType)]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).vector, true
	}
	return nil, false
}

// Put stores an embedding, evicting the least recently used entry when full.
func (c *EmbeddingCache) Put(text string, inputType InputType, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(text, inputType)
	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).vector = vector
		return
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, vector: vector})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachingEmbedder serves repeated single-text embeddings from an
// EmbeddingCache. Batch calls always go to the wrapped Embedder.
type CachingEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachingEmbedder wraps e. A non-positive capacity returns e unchanged.
func NewCachingEmbedder(e Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return e
	}
	return &CachingEmbedder{Embedder: e, cache: NewEmbeddingCache(capacity)}
}

func (c *CachingEmbedder) EmbedText(ctx context.Context, text string, inputType InputType) ([]float32, error) {
	if v, ok := c.cache.Get(text, inputType); ok {
		return v, nil
	}
	v, err := c.Embedder.EmbedText(ctx, text, inputType)
	if err != nil {
		return nil, err
	}
	c.cache.Put(text, inputType, v)
	return v, nil
}
