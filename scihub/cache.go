package scihub

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
	log "github.com/sirupsen/logrus"
)

const infoCacheTTL = 10 * time.Minute

type cachedInfo struct {
	product *Product
	added   time.Time
}

// infoCache holds resolved entity metadata so repeated downloads and batch
// retries do not hit the metadata endpoint again. Entries expire so a
// long-lived client eventually observes catalog-side corrections.
type infoCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cachedInfo
}

func newInfoCache(ttl time.Duration) *infoCache {
	return &infoCache{
		ttl:     ttl,
		entries: make(map[string]*cachedInfo),
	}
}

// get returns a copy so callers cannot mutate the cached metadata.
func (c *infoCache) get(id string) (*Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if time.Since(e.added) > c.ttl {
		delete(c.entries, id)
		return nil, false
	}
	cp := &Product{}
	copier.Copy(cp, e.product)
	return cp, true
}

func (c *infoCache) put(p *Product) {
	cp := &Product{}
	copier.Copy(cp, p)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ID] = &cachedInfo{product: cp, added: time.Now()}
	log.Debugf("Product info cache has %d entries", len(c.entries))
}
