package syncutil

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestShardedMutex_BasicLockUnlock(t *testing.T) {
	var m ShardedMutex

	unlock := m.Lock("key1")
	unlock()

	// Relock after unlock should not deadlock.
	unlock = m.Lock("key1")
	unlock()
}

func TestShardedMutex_MutualExclusion(t *testing.T) {
	var m ShardedMutex

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("counter")
			defer unlock()
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	if atomic.LoadInt64(&counter) != n {
		t.Fatalf("expected %d, got %d", n, atomic.LoadInt64(&counter))
	}
}

func TestShardedMutex_DifferentShardsIndependent(t *testing.T) {
	var m ShardedMutex

	// Keys may hash to the same shard, so verify first.
	if m.shard("rift_a") == m.shard("rift_b") {
		t.Skip("keys collide into one shard")
	}

	unlockA := m.Lock("rift_a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("rift_b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestShardedMutex_SameKeySameShard(t *testing.T) {
	var m ShardedMutex
	if m.shard("rift_abc") != m.shard("rift_abc") {
		t.Error("same key must map to the same shard")
	}
}
