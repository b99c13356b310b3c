// Package limiter bounds how many jobs of one class run at once.
package limiter

import (
	"context"
	"strings"
	"sync"
)

// Limiter holds one semaphore per key, created on first use.
type Limiter struct {
	mu       sync.Mutex
	caps     map[string]int
	fallback int
	sem      map[string]chan struct{}
}

// New returns a limiter with per-key capacities; unknown keys get fallback.
func New(caps map[string]int, fallback int) *Limiter {
	if fallback <= 0 {
		fallback = 1
	}
	c := make(map[string]int, len(caps))
	for k, v := range caps {
		if v <= 0 {
			v = 1
		}
		c[strings.ToLower(k)] = v
	}
	return &Limiter{caps: c, fallback: fallback, sem: map[string]chan struct{}{}}
}

func (l *Limiter) slot(key string) chan struct{} {
	key = strings.ToLower(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[key]
	if !ok {
		n, ok := l.caps[key]
		if !ok {
			n = l.fallback
		}
		ch = make(chan struct{}, n)
		l.sem[key] = ch
	}
	return ch
}

// Acquire blocks until a slot for key is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// Allow tries to reserve a slot without waiting.
func (l *Limiter) Allow(key string) (func(), bool) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		return func() {}, false
	}
}

// InFlight reports how many slots of key are taken.
func (l *Limiter) InFlight(key string) int {
	return len(l.slot(key))
}
