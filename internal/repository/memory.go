package repository

import (
	"context"
	"sync"
	"time"
)

type holdEntry struct {
	owner     string
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

const memorySweepInterval = time.Minute

// MemoryHoldStore is the single-process hold store used without Redis.
// Expired entries are dropped on access, at most once per sweep interval.
type MemoryHoldStore struct {
	mu         sync.Mutex
	holds      map[string]holdEntry
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
	lastSweep  time.Time
}

func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{
		holds:      make(map[string]holdEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

// sweep must be called with mu held.
func (r *MemoryHoldStore) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < memorySweepInterval {
		return
	}
	r.lastSweep = now
	for key, h := range r.holds {
		if !now.Before(h.expiresAt) {
			delete(r.holds, key)
		}
	}
	for key, e := range r.rateLimits {
		if now.After(e.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
}

func (r *MemoryHoldStore) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	if h, ok := r.holds[key]; ok && now.Before(h.expiresAt) {
		return false, nil
	}
	r.holds[key] = holdEntry{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (r *MemoryHoldStore) ReleaseHold(ctx context.Context, key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.holds[key]; ok && h.owner == owner {
		delete(r.holds, key)
	}
	return nil
}

func (r *MemoryHoldStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
