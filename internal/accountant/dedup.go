package accountant

import (
	"container/list"
	"fmt"
)

// DBDedupChecker is the cold-path lookup against the persisted audit log.
type DBDedupChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// Deduper implements two-tier idempotency checking: an in-memory LRU for
// the hot path and a database lookup for keys that have aged out.
// Not thread-safe — only accessed under the engine's writer lock.
type Deduper struct {
	lru       *dedupLRU
	dbChecker DBDedupChecker
}

func NewDeduper(capacity int, dbChecker DBDedupChecker) *Deduper {
	return &Deduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
	}
}

func compositeKey(eventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", eventType, idempotencyKey)
}

// IsDuplicate reports whether the event has already been processed.
// A DB lookup failure is treated as not-duplicate so a database blip
// cannot stall ingestion; the audit log's ON CONFLICT guards the write side.
func (d *Deduper) IsDuplicate(eventType, idempotencyKey string) bool {
	key := compositeKey(eventType, idempotencyKey)
	if d.lru.contains(key) {
		return true
	}
	if d.dbChecker != nil {
		isDup, err := d.dbChecker.IsDuplicate(eventType, idempotencyKey)
		if err != nil {
			return false
		}
		if isDup {
			d.lru.add(key)
			return true
		}
	}
	return false
}

// MarkProcessed records the key after the event commits.
func (d *Deduper) MarkProcessed(eventType, idempotencyKey string) {
	d.lru.add(compositeKey(eventType, idempotencyKey))
}

// Warm preloads composite keys (snapshot restore) to avoid cold-path DB
// lookups for recently processed events.
func (d *Deduper) Warm(keys []string) {
	for _, key := range keys {
		d.lru.add(key)
	}
}

// Keys returns the cached composite keys for snapshotting.
func (d *Deduper) Keys() []string {
	return d.lru.keys()
}

// Size returns current LRU occupancy.
func (d *Deduper) Size() int {
	return d.lru.ll.Len()
}

// --- LRU ---

type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	ll       *list.List
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		ll:       list.New(),
	}
}

func (l *dedupLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.ll.MoveToFront(elem)
	}
	return ok
}

func (l *dedupLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.ll.MoveToFront(elem)
		return
	}
	l.cache[key] = l.ll.PushFront(key)
	if l.ll.Len() > l.capacity {
		oldest := l.ll.Back()
		if oldest != nil {
			l.ll.Remove(oldest)
			delete(l.cache, oldest.Value.(string))
		}
	}
}

func (l *dedupLRU) keys() []string {
	out := make([]string, 0, l.ll.Len())
	for e := l.ll.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}
