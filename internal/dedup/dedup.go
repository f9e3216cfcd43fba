// Package dedup implements the tracer's per-process event dedup cache
// (spec component C4): it suppresses repeated (kind, path, second-path)
// reports within one process lifetime.
package dedup

import (
	"sync"
	"time"

	"github.com/kalbhor/sandtrace/ioevent"
)

// lockBudget bounds how long IsHit will wait for the cache mutex before
// giving up. A caller that cannot acquire the lock within the budget
// proceeds as if the entry were absent — a syscall is never stalled
// waiting on bookkeeping.
const lockBudget = 3 * time.Millisecond

type pathPair struct {
	primary string
	second  string
}

// Cache maps an event kind to the set of path pairs already reported
// for it. Insertion order is irrelevant; only membership matters.
type Cache struct {
	mu   sync.Mutex
	seen map[ioevent.Kind]map[pathPair]struct{}
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{seen: make(map[ioevent.Kind]map[pathPair]struct{})}
}

// IsHit reports whether (kind, primary, second) has already been
// reported, recording it as seen if not. It acquires the cache's mutex
// with a fixed short budget; on timeout it returns false (never seen)
// without recording anything, so the caller reports the access rather
// than blocking indefinitely.
func (c *Cache) IsHit(kind ioevent.Kind, primary, second string) bool {
	if !c.tryLock(lockBudget) {
		return false
	}
	defer c.mu.Unlock()

	set, ok := c.seen[kind]
	if !ok {
		set = make(map[pathPair]struct{})
		c.seen[kind] = set
	}
	key := pathPair{primary: primary, second: second}
	if _, hit := set[key]; hit {
		return true
	}
	set[key] = struct{}{}
	return false
}

// tryLock attempts to acquire mu within budget. sync.Mutex has no
// native timed-lock, so the attempt runs on a separate goroutine; if it
// doesn't report success in time the goroutine is left to acquire the
// lock in the background and release it immediately, so the mutex is
// never abandoned mid-hold.
func (c *Cache) tryLock(budget time.Duration) bool {
	acquired := make(chan struct{}, 1)
	go func() {
		c.mu.Lock()
		acquired <- struct{}{}
	}()
	select {
	case <-acquired:
		return true
	case <-time.After(budget):
		go func() {
			<-acquired
			c.mu.Unlock()
		}()
		return false
	}
}
