package service

import (
	"hash/fnv"
	"sync"
)

const missShards = 16

// missTracker counts cache fills in progress per key. Keys hash onto shards
// with their own locks, so fills for different beaches rarely contend.
type missTracker struct {
	shards [missShards]missShard
}

type missShard struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	t := &missTracker{}
	for i := range t.shards {
		t.shards[i].active = make(map[string]int)
	}
	return t
}

func (t *missTracker) shardFor(key string) *missShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%missShards]
}

// Begin registers a fill for key and returns how many are now running for it,
// this one included. A count above 1 is a stampede. release must be called
// once the fill ends; further calls are no-ops.
func (t *missTracker) Begin(key string) (int, func()) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	sh.active[key]++
	n := sh.active[key]
	sh.mu.Unlock()

	var once sync.Once
	return n, func() {
		once.Do(func() {
			sh.mu.Lock()
			defer sh.mu.Unlock()
			if sh.active[key] <= 1 {
				delete(sh.active, key)
				return
			}
			sh.active[key]--
		})
	}
}

// Active reports the fills running for key.
func (t *missTracker) Active(key string) int {
	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.active[key]
}
