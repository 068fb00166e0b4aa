// Package producerfake provides a scriptable, counting producer for tests of
// code built on atmcache.
package producerfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/atmcache/cachecore"
)

type outcome struct {
	value   []byte
	err     error
	panics  any
	blocked bool
}

// Fake hands out producers whose results are scripted per key and records how
// often each key was produced. Unscripted keys produce the key itself.
type Fake struct {
	mu       sync.Mutex
	outcomes map[string]outcome
	counts   map[string]int
	gate     chan struct{}
	started  chan string
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		outcomes: make(map[string]outcome),
		counts:   make(map[string]int),
		started:  make(chan string, 1024),
	}
}

// Return scripts key to produce value.
func (f *Fake) Return(key string, value []byte) *Fake {
	return f.script(key, outcome{value: value})
}

// Fail scripts key to produce err.
func (f *Fake) Fail(key string, err error) *Fake {
	return f.script(key, outcome{err: err})
}

// Empty scripts key to produce a nil value without error.
func (f *Fake) Empty(key string) *Fake {
	return f.script(key, outcome{})
}

// Panic scripts key to panic with v.
func (f *Fake) Panic(key string, v any) *Fake {
	return f.script(key, outcome{panics: v})
}

// Stall scripts key to block until its context ends, ignoring Hold releases.
func (f *Fake) Stall(key string) *Fake {
	return f.script(key, outcome{blocked: true})
}

func (f *Fake) script(key string, o outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[key] = o
	return f
}

// Hold makes every later invocation block until release is called or its
// context ends. The scripted outcome is read after release, so it may be
// changed while invocations are held.
func (f *Fake) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Producer returns a producer for key.
func (f *Fake) Producer(key string) cachecore.Producer {
	return func(ctx context.Context) ([]byte, error) {
		f.mu.Lock()
		f.counts[key]++
		gate := f.gate
		f.mu.Unlock()

		select {
		case f.started <- key:
		default:
		}

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		f.mu.Lock()
		o, ok := f.outcomes[key]
		f.mu.Unlock()
		if !ok {
			return []byte(key), nil
		}
		switch {
		case o.panics != nil:
			panic(o.panics)
		case o.blocked:
			<-ctx.Done()
			return nil, ctx.Err()
		case o.err != nil:
			return nil, o.err
		}
		if o.value == nil {
			return nil, nil
		}
		clone := make([]byte, len(o.value))
		copy(clone, o.value)
		return clone, nil
	}
}

// WaitStarted blocks until n invocations have begun since the last call,
// failing t after timeout.
func (f *Fake) WaitStarted(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-f.started:
		case <-deadline:
			t.Fatalf("expected %d producer invocations to start, saw %d", n, i)
		}
	}
}

// Count returns invocations for key.
func (f *Fake) Count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

// Total returns invocations across keys.
func (f *Fake) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts {
		sum += v
	}
	return sum
}

// Reset clears recorded counts. Scripts are kept.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[string]int)
}

// AssertCalled verifies key was produced the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, key string, times int) {
	t.Helper()
	if got := f.Count(key); got != times {
		t.Fatalf("expected producer %q called %d times, got %d", key, times, got)
	}
}

// AssertNotCalled ensures key was never produced.
func (f *Fake) AssertNotCalled(t *testing.T, key string) {
	t.Helper()
	if got := f.Count(key); got != 0 {
		t.Fatalf("expected producer %q not called, got %d", key, got)
	}
}

// AssertTotal ensures the total invocation count matches times.
func (f *Fake) AssertTotal(t *testing.T, times int) {
	t.Helper()
	if got := f.Total(); got != times {
		t.Fatalf("expected producer total=%d, got %d", times, got)
	}
}
