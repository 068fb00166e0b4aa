package cachetest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goforj/atmcache"
	"github.com/goforj/atmcache/cachecore"
)

// Options configures shared producer contract checks.
type Options struct {
	// CaseName is used to namespace cache keys. Defaults to t.Name().
	CaseName string
	// Present must produce Want.
	Present cachecore.Producer
	// Want is the value Present is expected to produce.
	Want []byte
	// Absent must report that there is nothing to cache. Nil skips the check.
	Absent cachecore.Producer
	// Callers is how many concurrent fetches are issued for one key. Defaults to 8.
	Callers int
	// Timeout bounds each step of the suite. Defaults to 5s.
	Timeout time.Duration
}

// RunProducerContract runs a backend-agnostic contract suite against a
// producer and checks it composes with atmcache.Cache.
func RunProducerContract(t *testing.T, opts Options) {
	t.Helper()

	if opts.Present == nil {
		t.Fatalf("producer contract requires a Present producer")
	}
	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	callers := opts.Callers
	if callers <= 0 {
		callers = 8
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	key := func(s string) string {
		return caseName + ":" + s
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Direct invocation.
	body, err := opts.Present(ctx)
	if err != nil || body == nil {
		t.Fatalf("present producer failed: body=%q err=%v", body, err)
	}
	if !bytes.Equal(body, opts.Want) {
		t.Fatalf("unexpected present value: want %q, got %q", opts.Want, body)
	}
	if len(body) > 0 {
		body[0] ^= 0xff
		again, err := opts.Present(ctx)
		if err != nil || !bytes.Equal(again, opts.Want) {
			t.Fatalf("producer results share memory between calls: %q err=%v", again, err)
		}
	}

	if opts.Absent != nil {
		body, err := opts.Absent(ctx)
		if cachecore.Usable(body, err) {
			t.Fatalf("absent producer returned a cacheable value %q", body)
		}
		if err != nil && !errors.Is(err, cachecore.ErrNoValue) {
			t.Fatalf("absent producer must report no value, got error %v", err)
		}
	}

	// Coalesced fetch through a cache.
	c := atmcache.New(atmcache.WithDefaultTTL(time.Minute))
	var calls atomic.Int32
	counted := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return opts.Present(ctx)
	}
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, ok, err := c.Fetch(ctx, key("present"), counted)
			switch {
			case err != nil:
				errs <- err
			case !ok:
				errs <- errors.New("fetch returned no value")
			case !bytes.Equal(body, opts.Want):
				errs <- errors.New("fetch returned " + string(body))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent fetch failed: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one producer call for %d concurrent fetches, got %d", callers, n)
	}
	if l := c.Get(key("present")); l.Status != atmcache.StatusFresh {
		t.Fatalf("expected fetched value cached, got %s", l.Status)
	}

	if opts.Absent != nil {
		body, ok, err := c.Fetch(ctx, key("absent"), opts.Absent)
		if err != nil || ok || body != nil {
			t.Fatalf("expected empty fetch for absent producer: body=%q ok=%v err=%v", body, ok, err)
		}
		if l := c.Get(key("absent")); l.Status != atmcache.StatusMiss {
			t.Fatalf("absent result must not be cached, got %s", l.Status)
		}
	}
}
