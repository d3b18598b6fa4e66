package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var testKey = Key{Op: "messages", Channel: "group:1"}

// gatedFetcher blocks every call until it is released with a result.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   []chan result
	started chan int
}

type result struct {
	v   any
	err error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan int, 16)}
}

func (f *gatedFetcher) fetch(ctx context.Context) (any, error) {
	ch := make(chan result, 1)
	f.mu.Lock()
	f.calls = append(f.calls, ch)
	n := len(f.calls)
	f.mu.Unlock()
	f.started <- n
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *gatedFetcher) release(n int, v any, err error) {
	f.mu.Lock()
	ch := f.calls[n-1]
	f.mu.Unlock()
	ch <- result{v: v, err: err}
}

func (f *gatedFetcher) awaitStart(t *testing.T, n int) {
	t.Helper()
	select {
	case got := <-f.started:
		require.Equal(t, n, got)
	case <-time.After(waitFor):
		t.Fatalf("fetch %d did not start", n)
	}
}

func inflight(p *Poller, key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[key]; ok {
		return t.inflight
	}
	return -1
}

func newPoller(t *testing.T, cfg Config) *Poller {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestSubscribeFetchesImmediately(t *testing.T) {
	p := newPoller(t, Config{})
	f := newGatedFetcher()

	cancel := p.Subscribe(context.Background(), testKey, f.fetch)
	defer cancel()

	f.awaitStart(t, 1)
	_, ok := Value[string](p, testKey)
	assert.False(t, ok)

	f.release(1, "hello", nil)
	require.Eventually(t, func() bool {
		v, ok := Value[string](p, testKey)
		return ok && v == "hello"
	}, waitFor, tick)
}

func TestStaleResponseDiscarded(t *testing.T) {
	p := newPoller(t, Config{})
	f := newGatedFetcher()

	cancel := p.Subscribe(context.Background(), testKey, f.fetch)
	defer cancel()
	f.awaitStart(t, 1)

	require.True(t, p.Refresh(testKey))
	f.awaitStart(t, 2)

	f.release(2, "fresh", nil)
	require.Eventually(t, func() bool {
		v, ok := Value[string](p, testKey)
		return ok && v == "fresh"
	}, waitFor, tick)

	f.release(1, "stale", nil)
	require.Eventually(t, func() bool { return inflight(p, testKey) == 0 }, waitFor, tick)

	v, ok := Value[string](p, testKey)
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
	e, _ := p.Get(testKey)
	assert.Equal(t, uint64(2), e.Seq)
}

func TestTickSkippedWhileInFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := newPoller(t, Config{Interval: 10 * time.Millisecond})

	cancel := p.Subscribe(context.Background(), testKey, func(ctx context.Context) (any, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 1, nil
	})
	defer cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool { return calls.Load() > 2 }, waitFor, tick)
}

func TestFailureKeepsCachedValue(t *testing.T) {
	var fired []error
	var mu sync.Mutex
	p := newPoller(t, Config{
		FailureThreshold: 2,
		OnError: func(_ Key, err error) {
			mu.Lock()
			fired = append(fired, err)
			mu.Unlock()
		},
	})
	f := newGatedFetcher()
	boom := errors.New("connection refused")

	cancel := p.Subscribe(context.Background(), testKey, f.fetch)
	defer cancel()

	f.awaitStart(t, 1)
	f.release(1, "cached", nil)
	require.Eventually(t, func() bool {
		_, ok := Value[string](p, testKey)
		return ok
	}, waitFor, tick)

	for n := 2; n <= 4; n++ {
		p.Refresh(testKey)
		f.awaitStart(t, n)
		f.release(n, nil, boom)
		require.Eventually(t, func() bool { return inflight(p, testKey) == 0 }, waitFor, tick)
	}

	e, ok := p.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, "cached", e.Value)
	assert.ErrorIs(t, e.Err, boom)
	assert.Equal(t, 3, e.Failures)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, waitFor, tick)

	p.Refresh(testKey)
	f.awaitStart(t, 5)
	f.release(5, "recovered", nil)
	require.Eventually(t, func() bool {
		e, _ := p.Get(testKey)
		return e.Value == "recovered" && e.Failures == 0 && e.Err == nil
	}, waitFor, tick)
}

func TestDeniedReadIsNotAFailure(t *testing.T) {
	fired := false
	p := newPoller(t, Config{
		FailureThreshold: 1,
		OnError:          func(Key, error) { fired = true },
	})
	f := newGatedFetcher()

	cancel := p.Subscribe(context.Background(), testKey, f.fetch)
	defer cancel()
	f.awaitStart(t, 1)
	f.release(1, nil, shared.ErrNotGroupMember)

	require.Eventually(t, func() bool {
		e, ok := p.Get(testKey)
		return ok && errors.Is(e.Err, shared.ErrNotGroupMember)
	}, waitFor, tick)
	e, _ := p.Get(testKey)
	assert.Equal(t, 0, e.Failures)
	assert.False(t, e.Loaded)
	assert.False(t, fired)
}

func TestCancelStopsPollingAndInFlightFetch(t *testing.T) {
	p := newPoller(t, Config{})
	f := newGatedFetcher()

	cancel := p.Subscribe(context.Background(), testKey, f.fetch)
	f.awaitStart(t, 1)
	assert.Equal(t, 1, p.Active())

	cancel()
	cancel()
	assert.Equal(t, 0, p.Active())
	assert.False(t, p.Refresh(testKey))

	_, ok := p.Get(testKey)
	assert.False(t, ok)
}

func TestSharedSubscription(t *testing.T) {
	p := newPoller(t, Config{})
	f := newGatedFetcher()

	first := p.Subscribe(context.Background(), testKey, f.fetch)
	second := p.Subscribe(context.Background(), testKey, f.fetch)
	f.awaitStart(t, 1)
	assert.Equal(t, 1, p.Active())

	first()
	assert.Equal(t, 1, p.Active())
	second()
	assert.Equal(t, 0, p.Active())
}

func TestKeysDoNotInterfere(t *testing.T) {
	p := newPoller(t, Config{})
	other := Key{Op: "messages", Channel: "group:2"}

	c1 := p.Subscribe(context.Background(), testKey, func(context.Context) (any, error) { return "one", nil })
	defer c1()
	c2 := p.Subscribe(context.Background(), other, func(context.Context) (any, error) { return "two", nil })
	defer c2()

	require.Eventually(t, func() bool {
		a, ok1 := Value[string](p, testKey)
		b, ok2 := Value[string](p, other)
		return ok1 && ok2 && a == "one" && b == "two"
	}, waitFor, tick)
}

func TestContextDoneRemovesTask(t *testing.T) {
	p := newPoller(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	release := p.Subscribe(ctx, testKey, func(context.Context) (any, error) { return 1, nil })
	defer release()
	cancel()

	require.Eventually(t, func() bool { return p.Active() == 0 }, waitFor, tick)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "messages(group:1)", testKey.String())
}
