package selector

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// requestCache is a fixed-capacity LRU cache for selection results with
// per-entry expiry. A hit moves the entry to the front; inserting above
// capacity evicts the least recently used entry.
type requestCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List

	now func() time.Time
}

type cacheEntry struct {
	key       string
	result    []InstanceOption
	expiresAt time.Time
}

func newRequestCache(capacity int, ttl time.Duration) *requestCache {
	return &requestCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// get returns a copy of the cached result for key, or false when the key
// is absent or expired. Expired entries are removed on access.
func (c *requestCache) get(key string) ([]InstanceOption, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(element)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(element)
	return copyResult(entry.result), true
}

// set stores a copy of result under key, refreshing the expiry. Callers
// keep ownership of their slice.
func (c *requestCache) set(key string, result []InstanceOption) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.result = copyResult(result)
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(element)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	entry := &cacheEntry{
		key:       key,
		result:    copyResult(result),
		expiresAt: c.now().Add(c.ttl),
	}
	c.entries[key] = c.order.PushFront(entry)
}

func (c *requestCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// copyResult clones options deep enough that callers cannot mutate cached
// state through returned maps.
func copyResult(options []InstanceOption) []InstanceOption {
	if options == nil {
		return nil
	}
	cloned := make([]InstanceOption, len(options))
	for i, option := range options {
		cloned[i] = option
		if option.AZPrice != nil {
			azPrice := make(map[string]float64, len(option.AZPrice))
			for zone, price := range option.AZPrice {
				azPrice[zone] = price
			}
			cloned[i].AZPrice = azPrice
		}
		if option.InterruptionFrequency != nil {
			frequency := *option.InterruptionFrequency
			cloned[i].InterruptionFrequency = &frequency
		}
	}
	return cloned
}

// cacheKey derives a stable digest from the normalized options. Requests
// that only differ in defaulted fields share a key.
func cacheKey(opts Options) (string, error) {
	encoded, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}
