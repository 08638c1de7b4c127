package memory

import (
	"context"
	"hash/fnv"
	"sync"
)

const lockShards = 32

// lockTable is a sharded table of row locks. Each lock is a one-slot channel
// so that acquisition can be attempted without blocking or bounded by a
// context. An entry lives only while someone holds or waits for it.
type lockTable struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	t := &lockTable{}
	for i := range t.shards {
		t.shards[i].locks = make(map[string]*lockEntry)
	}
	return t
}

func (t *lockTable) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%lockShards]
}

func (t *lockTable) acquire(key string) *lockEntry {
	shard := t.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	e, ok := shard.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		shard.locks[key] = e
	}
	e.refs++
	return e
}

func (t *lockTable) drop(key string, e *lockEntry) {
	shard := t.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(shard.locks, key)
	}
}

// tryLock acquires key only if nobody holds it.
func (t *lockTable) tryLock(key string) bool {
	e := t.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return true
	default:
		t.drop(key, e)
		return false
	}
}

// lock waits for key until ctx is done.
func (t *lockTable) lock(ctx context.Context, key string) error {
	e := t.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.drop(key, e)
		return ctx.Err()
	}
}

func (t *lockTable) unlock(key string) {
	shard := t.shard(key)
	shard.mu.Lock()
	e := shard.locks[key]
	shard.mu.Unlock()

	<-e.ch
	t.drop(key, e)
}
