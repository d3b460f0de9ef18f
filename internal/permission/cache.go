package permission

import (
	"container/list"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// cacheKeyOf is the structural hash of a Query, used as the LRU map key.
// Query contains only hashable value types (UUID-backed IDs and a string),
// so hashstructure.Hash cannot fail in practice; the error path falls back
// to a fixed sentinel rather than panicking.
func cacheKeyOf(q Query) uint64 {
	h, err := hashstructure.Hash(q, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}

type entry struct {
	key       uint64
	result    Result
	expiresAt time.Time
	user      identifiers.UserID
	channel   identifiers.ChannelID
	elem      *list.Element
}

// cache is a bounded LRU with per-entry TTL, plus secondary indices by
// subject and by channel so InvalidateSubject/InvalidateChannel can sweep
// every entry touching them without scanning the whole cache.
type cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	byKey    map[uint64]*entry
	byUser   map[identifiers.UserID]map[uint64]struct{}
	byChan   map[identifiers.ChannelID]map[uint64]struct{}
}

func newCache(capacity int, ttl time.Duration) *cache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		byKey:    make(map[uint64]*entry),
		byUser:   make(map[identifiers.UserID]map[uint64]struct{}),
		byChan:   make(map[identifiers.ChannelID]map[uint64]struct{}),
	}
}

func (c *cache) get(key uint64) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byKey[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		return Result{}, false
	}
	c.order.MoveToFront(e.elem)
	return e.result, true
}

// put inserts res under the query's hash key, indexed by q.User and
// q.Channel so a later invalidation can find it.
func (c *cache) put(q Query, res Result) {
	key := cacheKeyOf(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byKey[key]; ok {
		c.removeLocked(e)
	}

	e := &entry{
		key:       key,
		result:    res,
		expiresAt: time.Now().Add(c.ttl),
		user:      q.User,
		channel:   q.Channel,
	}
	e.elem = c.order.PushFront(e)
	c.byKey[key] = e
	c.indexLocked(e)

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}
}

func (c *cache) indexLocked(e *entry) {
	if !e.user.IsNil() {
		set, ok := c.byUser[e.user]
		if !ok {
			set = make(map[uint64]struct{})
			c.byUser[e.user] = set
		}
		set[e.key] = struct{}{}
	}
	if !e.channel.IsNil() {
		set, ok := c.byChan[e.channel]
		if !ok {
			set = make(map[uint64]struct{})
			c.byChan[e.channel] = set
		}
		set[e.key] = struct{}{}
	}
}

// removeLocked must be called with c.mu held.
func (c *cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.byKey, e.key)
	if set, ok := c.byUser[e.user]; ok {
		delete(set, e.key)
		if len(set) == 0 {
			delete(c.byUser, e.user)
		}
	}
	if set, ok := c.byChan[e.channel]; ok {
		delete(set, e.key)
		if len(set) == 0 {
			delete(c.byChan, e.channel)
		}
	}
}

func (c *cache) invalidateSubject(user identifiers.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byUser[user] {
		if e, ok := c.byKey[key]; ok {
			c.removeLocked(e)
		}
	}
}

func (c *cache) invalidateChannel(ch identifiers.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byChan[ch] {
		if e, ok := c.byKey[key]; ok {
			c.removeLocked(e)
		}
	}
}
