package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type handle struct{ id int64 }

func TestGate_ConcurrentAcquireLoadsOnce(t *testing.T) {
	g := NewGate[*handle]("test")

	var loads atomic.Int64
	release := make(chan struct{})
	load := func(ctx context.Context) (*handle, error) {
		n := loads.Add(1)
		<-release
		return &handle{id: n}, nil
	}

	const callers = 32
	results := make([]*handle, callers)
	errs := make([]error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = g.Acquire(context.Background(), "base", load)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("Expected exactly 1 load, got %d", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d: expected the shared handle", i)
		}
	}
}

func TestGate_CachedAfterLoad(t *testing.T) {
	g := NewGate[*handle]("test")
	loads := 0
	load := func(ctx context.Context) (*handle, error) {
		loads++
		return &handle{id: int64(loads)}, nil
	}

	first, _ := g.Acquire(context.Background(), "k", load)
	second, _ := g.Acquire(context.Background(), "k", load)

	if loads != 1 {
		t.Errorf("Expected 1 load, got %d", loads)
	}
	if first != second {
		t.Error("Expected the same handle on repeated acquire")
	}
	if _, ok := g.Peek("k"); !ok {
		t.Error("Expected handle to be cached")
	}
}

func TestGate_KeysAreIndependent(t *testing.T) {
	g := NewGate[*handle]("test")
	load := func(id int64) LoadFunc[*handle] {
		return func(ctx context.Context) (*handle, error) { return &handle{id: id}, nil }
	}

	a, _ := g.Acquire(context.Background(), "a", load(1))
	b, _ := g.Acquire(context.Background(), "b", load(2))

	if a == b {
		t.Error("Expected distinct handles for distinct keys")
	}
	keys := g.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected keys [a b], got %v", keys)
	}
}

func TestGate_FailureIsNotCached(t *testing.T) {
	g := NewGate[*handle]("test")
	boom := errors.New("weights missing")

	attempts := 0
	load := func(ctx context.Context) (*handle, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return &handle{id: 7}, nil
	}

	if _, err := g.Acquire(context.Background(), "k", load); !errors.Is(err, boom) {
		t.Fatalf("Expected load error, got %v", err)
	}
	if _, ok := g.Peek("k"); ok {
		t.Error("Expected failed load not to be cached")
	}

	h, err := g.Acquire(context.Background(), "k", load)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if h.id != 7 || attempts != 2 {
		t.Errorf("Expected second load to run, got id=%d attempts=%d", h.id, attempts)
	}
}

func TestGate_FailureReachesEveryWaiter(t *testing.T) {
	g := NewGate[*handle]("test")
	boom := errors.New("oom")
	release := make(chan struct{})
	load := func(ctx context.Context) (*handle, error) {
		<-release
		return nil, boom
	}

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := g.Acquire(context.Background(), "k", load)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Errorf("Expected load error for every waiter, got %v", err)
		}
	}
}

func TestGate_WaiterCancellationDoesNotAbortLoad(t *testing.T) {
	g := NewGate[*handle]("test")
	release := make(chan struct{})
	loadCtxErr := make(chan error, 1)
	load := func(ctx context.Context) (*handle, error) {
		<-release
		loadCtxErr <- ctx.Err()
		return &handle{id: 1}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx, "k", load)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected waiter to see context.Canceled, got %v", err)
	}

	close(release)
	if err := <-loadCtxErr; err != nil {
		t.Errorf("Expected load context to survive caller cancellation, got %v", err)
	}

	h, err := g.Acquire(context.Background(), "k", func(ctx context.Context) (*handle, error) {
		t.Error("Expected no second load")
		return nil, nil
	})
	if err != nil || h == nil || h.id != 1 {
		t.Errorf("Expected the handle from the first load, got %v, %v", h, err)
	}
}
