package embedding

import (
	"container/list"
	"sync"
)

// LabelCache memoizes text embeddings by label. Card datasets repeat labels
// heavily ("want", "more", colors), so caching avoids re-running the text
// encoder for every occurrence. Least-recently-used labels are evicted once
// the cache is full.
type LabelCache struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

type labelEntry struct {
	label  string
	vector []float32
}

// NewLabelCache creates a cache holding at most max labels.
func NewLabelCache(max int) *LabelCache {
	if max < 1 {
		max = 1
	}
	return &LabelCache{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached embedding for label and marks it recently used.
func (c *LabelCache) Get(label string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[label]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*labelEntry).vector, true
}

// Set stores the embedding for label, evicting the least-recently-used
// entry when the cache is full.
func (c *LabelCache) Set(label string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[label]; ok {
		el.Value.(*labelEntry).vector = vector
		c.order.MoveToFront(el)
		return
	}
	c.items[label] = c.order.PushFront(&labelEntry{label: label, vector: vector})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*labelEntry).label)
	}
}

// Len returns the number of cached labels.
func (c *LabelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
