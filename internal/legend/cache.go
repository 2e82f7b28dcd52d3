package legend

import (
	"container/list"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
)

// Cache keeps the legends of recently seen class sets so a server does not
// re-rasterize on every request. Entries are keyed by class content, so a
// reloaded set with different styling misses. Returned legends share their
// byte slices with the cache and must not be modified.
type Cache struct {
	opts       Options
	maxEntries int

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[uint64]*list.Element
}

type cacheEntry struct {
	key    uint64
	legend Legend
}

// NewCache creates a cache rendering with opts and holding at most
// maxEntries legends (minimum 1).
func NewCache(opts Options, maxEntries int) *Cache {
	return &Cache{
		opts:       opts,
		maxEntries: max(maxEntries, 1),
		order:      list.New(),
		items:      make(map[uint64]*list.Element),
	}
}

// Render returns the cached legend for classes, rendering it on a miss.
// Failed renders are not cached.
func (c *Cache) Render(classes domain.ClassSet) (Legend, error) {
	key := fingerprint(classes)
	if l, ok := c.get(key); ok {
		return l, nil
	}
	l, err := Render(classes, c.opts)
	if err != nil {
		return Legend{}, err
	}
	c.put(key, l)
	return l, nil
}

// Len reports the number of cached legends.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) get(key uint64) (Legend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Legend{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).legend, true
}

func (c *Cache) put(key uint64, l Legend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).legend = l
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, legend: l})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// fingerprint hashes every field that affects the rendered legend.
func fingerprint(classes domain.ClassSet) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeString := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, c := range classes.All() {
		writeString(c.Label)
		writeString(domain.DisplayLabel(c))
		writeString(c.AlertLabel)
		writeString(c.Color)
		writeFloat(c.BoundsMin)
		writeFloat(c.BoundsMax)
	}
	return h.Sum64()
}
