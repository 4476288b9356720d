package llm

import (
	"container/list"
	"sync"
)

// EmbeddingCache is an LRU cache of single-text embeddings keyed by text.
type EmbeddingCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key      string
	vector   []float32
	provider string
	model    string
}

// NewEmbeddingCache creates a cache holding at most capacity entries.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for text if present.
func (c *EmbeddingCache) Get(text string) (EmbeddingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		return EmbeddingResult{}, false
	}
	c.lru.MoveToFront(elem)
	e := elem.Value.(*cacheEntry)
	return EmbeddingResult{Vectors: [][]float32{e.vector}, Provider: e.provider, Model: e.model}, true
}

// Set stores the embedding of text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vector []float32, provider, model string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		c.lru.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		e.vector, e.provider, e.model = vector, provider, model
		return
	}

	c.entries[text] = c.lru.PushFront(&cacheEntry{key: text, vector: vector, provider: provider, model: model})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
