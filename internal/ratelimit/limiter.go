// Package ratelimit implements the gateway's per-key sliding-window rate
// limiter (spec §4.1), in the mutex-guarded-map idiom the donor uses for its
// per-IP token-bucket middleware (cmd/agentflow/middleware.go's visitor
// map), but with a sliding-window counter instead of golang.org/x/time/rate,
// since the spec calls for an exact-count window rather than a token bucket.
package ratelimit

import (
	"sync"
	"time"
)

const window = 60 * time.Second
const gcInterval = 5 * time.Minute

type bucket struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter is a process-wide sliding-window rate limiter keyed by proxy
// keyId. Single-process; no cross-instance coordination (spec §4.1).
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	stop    chan struct{}
	now     func() time.Time
}

// New creates a Limiter and starts its background GC sweep.
func New() *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.gcLoop()
	return l
}

// Allow checks and, if admitted, records one request for keyId against
// limit (requests per 60s window). A nil limit means unlimited.
func (l *Limiter) Allow(keyID string, limit *int) bool {
	if limit == nil {
		return true
	}
	b := l.bucketFor(keyID)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.timestamps = kept

	if len(b.timestamps) >= *limit {
		return false
	}
	b.timestamps = append(b.timestamps, now)
	return true
}

func (l *Limiter) bucketFor(keyID string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[keyID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[keyID]; ok {
		return b
	}
	b = &bucket{}
	l.buckets[keyID] = b
	return b
}

func (l *Limiter) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		empty := len(b.timestamps) == 0
		if !empty {
			allStale := true
			for _, ts := range b.timestamps {
				if ts.After(cutoff) {
					allStale = false
					break
				}
			}
			empty = allStale
		}
		b.mu.Unlock()
		if empty {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the background GC sweep.
func (l *Limiter) Stop() { close(l.stop) }
