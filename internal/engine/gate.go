package engine

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc builds a handle. It receives a context detached from the
// cancellation of whichever caller happened to trigger the load.
type LoadFunc[H any] func(ctx context.Context) (H, error)

// Gate guarantees that at most one load per key is in flight and that every
// caller for a key receives the same handle. Loaded handles are cached for
// the life of the gate; failed loads are not, so the next Acquire retries.
type Gate[H any] struct {
	name string

	mu      sync.RWMutex
	handles map[string]H

	group singleflight.Group
}

// NewGate creates an empty gate. name is used in logs and metrics.
func NewGate[H any](name string) *Gate[H] {
	return &Gate[H]{name: name, handles: make(map[string]H)}
}

// Name returns the gate's name.
func (g *Gate[H]) Name() string { return g.name }

// Acquire returns the handle for key, loading it with load on first use.
// Concurrent first-time callers share the in-flight load. A caller whose
// ctx ends while waiting gets ctx.Err(); the load itself keeps going and
// its result is cached for later callers.
func (g *Gate[H]) Acquire(ctx context.Context, key string, load LoadFunc[H]) (H, error) {
	if h, ok := g.cached(key); ok {
		return h, nil
	}

	ch := g.group.DoChan(key, func() (any, error) {
		// A load for key may have finished between the read above and here.
		if h, ok := g.cached(key); ok {
			return h, nil
		}
		h, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.handles[key] = h
		g.mu.Unlock()
		return h, nil
	})

	var zero H
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(H), nil
	}
}

// Peek returns the cached handle for key without loading it.
func (g *Gate[H]) Peek(key string) (H, bool) {
	return g.cached(key)
}

// Keys returns the keys of all loaded handles, sorted.
func (g *Gate[H]) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, 0, len(g.handles))
	for k := range g.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (g *Gate[H]) cached(key string) (H, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.handles[key]
	return h, ok
}
