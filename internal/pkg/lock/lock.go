// Package lock provides per-giver locking for reputation transfers.
// Discord interaction handlers run on separate goroutines, so the
// daily-limit check and the subsequent log append for one giver must be
// serialized within the process.
package lock

import (
	"sync"
)

// giverMutex wraps a mutex with reference counting for pooled reuse.
type giverMutex struct {
	mu       sync.Mutex
	refCount int
}

// GiverLock provides per-(guild, giver) locking so that two concurrent
// give attempts by the same member cannot both pass the rolling-window
// daily-limit check.
type GiverLock struct {
	locks sync.Map // map[string]*giverMutex
	pool  sync.Pool
}

// NewGiverLock creates a new GiverLock instance.
func NewGiverLock() *GiverLock {
	return &GiverLock{
		pool: sync.Pool{
			New: func() any {
				return &giverMutex{}
			},
		},
	}
}

// key builds the composite lock key for a giver within a guild.
func key(guildID, giverID string) string {
	return guildID + ":" + giverID
}

// getLock retrieves or creates a mutex for the given guild and giver.
func (gl *GiverLock) getLock(guildID, giverID string) *giverMutex {
	k := key(guildID, giverID)
	if v, ok := gl.locks.Load(k); ok {
		return v.(*giverMutex)
	}

	newLock := gl.pool.Get().(*giverMutex)
	newLock.refCount = 0

	actual, loaded := gl.locks.LoadOrStore(k, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		gl.pool.Put(newLock)
	}
	return actual.(*giverMutex)
}

// Lock acquires the lock for a giver within a guild.
func (gl *GiverLock) Lock(guildID, giverID string) {
	lock := gl.getLock(guildID, giverID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a giver within a guild.
func (gl *GiverLock) Unlock(guildID, giverID string) {
	if v, ok := gl.locks.Load(key(guildID, giverID)); ok {
		lock := v.(*giverMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (gl *GiverLock) TryLock(guildID, giverID string) bool {
	lock := gl.getLock(guildID, giverID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the giver's lock.
func (gl *GiverLock) WithLock(guildID, giverID string, fn func() error) error {
	gl.Lock(guildID, giverID)
	defer gl.Unlock(guildID, giverID)
	return fn()
}
