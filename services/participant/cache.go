package participant

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"advocacy-engine/services/ledger"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "participant_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "participant_cache_miss_total"})
)

type cacheEntry struct {
	participant *ledger.Participant
	stale       bool
	fetchedAt   time.Time
}

// profileCache keeps hot roster reads off the primary. Entries are tiny,
// so there is no eviction beyond the TTL.
type profileCache struct {
	mu    sync.RWMutex
	items map[string]*cacheEntry
	ttl   time.Duration
	group singleflight.Group
}

func newProfileCache(ttl time.Duration) *profileCache {
	return &profileCache{
		items: make(map[string]*cacheEntry),
		ttl:   ttl,
	}
}

func (c *profileCache) get(id string) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	if !ok || (c.ttl > 0 && time.Since(e.fetchedAt) > c.ttl) {
		return nil, false
	}
	return e, true
}

func (c *profileCache) set(id string, p *ledger.Participant, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = &cacheEntry{participant: p, stale: stale, fetchedAt: time.Now()}
}

func (c *profileCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

// load coalesces concurrent misses for the same participant into one fetch.
// Mirror (stale) reads and absent participants are never cached; the next
// read should see the primary recover.
func (c *profileCache) load(ctx context.Context, id string, fetch func() (*ledger.Participant, bool, error)) (*ledger.Participant, bool, error) {
	if e, ok := c.get(id); ok {
		cacheHits.Inc()
		return e.participant, e.stale, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		p, stale, ferr := fetch()
		if ferr != nil {
			return nil, ferr
		}
		if p != nil && !stale {
			c.set(id, p, stale)
		}
		return &cacheEntry{participant: p, stale: stale}, nil
	})
	if err != nil {
		return nil, false, err
	}

	e := v.(*cacheEntry)
	return e.participant, e.stale, nil
}
