package enrich

import (
	"strings"
	"sync"

	"sentrypipe/internal/event"
)

// ipCacheCapacity bounds the IP classification cache. The cache exists
// purely for throughput — classification is pure and deterministic, so any
// bounded eviction policy is correct; capacity 10000 matches the original
// implementation's lru_cache sizing.
const ipCacheCapacity = 10000

// ipCache is a small bounded FIFO: oldest-inserted entry is evicted first,
// with no recency tracking on get. That is simpler than a generic LRU
// container and sufficient here since the only operation needed is
// get-or-compute over a small, address-space-bounded key set.
type ipCache struct {
	mu    sync.Mutex
	cap   int
	order []string
	vals  map[string]string
}

func newIPCache(capacity int) *ipCache {
	return &ipCache{
		cap:  capacity,
		vals: make(map[string]string, capacity),
	}
}

func (c *ipCache) get(ip string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[ip]
	return v, ok
}

func (c *ipCache) put(ip, class string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.vals[ip]; exists {
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.vals, oldest)
	}
	c.vals[ip] = class
	c.order = append(c.order, ip)
}

var defaultIPCache = newIPCache(ipCacheCapacity)

// ClassifyIP buckets an address into private/localhost/public, memoized.
// 10.*, 192.168.*, 172.* are private; 127.* is localhost; everything else is
// public. No real geolocation or threat-intel lookup is performed — that is
// explicitly out of scope.
func ClassifyIP(ip string) string {
	if class, ok := defaultIPCache.get(ip); ok {
		return class
	}
	class := classifyIP(ip)
	defaultIPCache.put(ip, class)
	return class
}

func classifyIP(ip string) string {
	switch {
	case strings.HasPrefix(ip, "10."), strings.HasPrefix(ip, "192.168."), strings.HasPrefix(ip, "172."):
		return event.IPClassPrivate
	case strings.HasPrefix(ip, "127."):
		return event.IPClassLocalhost
	default:
		return event.IPClassPublic
	}
}
