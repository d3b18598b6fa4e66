// Package poller refreshes ledger reads on a fixed cadence and caches the
// latest successful result per key.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

const (
	DefaultInterval         = time.Second
	DefaultFailureThreshold = 5
	DefaultCacheSize        = 256
)

// Key identifies one polled read: the operation, the channel it reads and
// the identity it reads as. Identity is zero for public reads.
type Key struct {
	Op       string
	Channel  string
	Identity shared.Identity
}

func (k Key) String() string {
	if k.Identity == (shared.Identity{}) {
		return fmt.Sprintf("%s(%s)", k.Op, k.Channel)
	}
	return fmt.Sprintf("%s(%s)@%s", k.Op, k.Channel, shared.ShortIdentity(k.Identity))
}

type Fetcher func(ctx context.Context) (any, error)

// Entry is the cached state of a key. Value and UpdatedAt belong to the last
// successful fetch; Err and Failures describe the fetches since.
type Entry struct {
	Value     any
	Loaded    bool
	Seq       uint64
	UpdatedAt time.Time
	Err       error
	Failures  int
}

type Config struct {
	Interval         time.Duration
	FailureThreshold int
	CacheSize        int
	// OnError fires once when a key's consecutive failures reach
	// FailureThreshold. It is re-armed by the next success.
	OnError  func(Key, error)
	OnUpdate func(Key, Entry)
	Logger   *zerolog.Logger
}

type Poller struct {
	cfg    Config
	now    func() time.Time
	logger *zerolog.Logger

	mu    sync.Mutex
	cache *lru.Cache[Key, Entry]
	tasks map[Key]*task
}

type task struct {
	fetch    Fetcher
	cancel   context.CancelFunc
	wake     chan struct{}
	refs     int
	issued   uint64
	applied  uint64
	inflight int
}

func New(cfg Config) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[Key, Entry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll cache: %w", err)
	}
	return &Poller{
		cfg:    cfg,
		now:    time.Now,
		logger: log.OrNop(cfg.Logger),
		cache:  cache,
		tasks:  make(map[Key]*task),
	}, nil
}

// Subscribe starts polling key with fetch, fetching immediately and then on
// every tick, until every returned cancel func was called or ctx is done.
// Subscribing to a key that is already polled shares the running task.
func (p *Poller) Subscribe(ctx context.Context, key Key, fetch Fetcher) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[key]
	if !ok {
		tctx, tcancel := context.WithCancel(ctx)
		t = &task{
			fetch:  fetch,
			cancel: tcancel,
			wake:   make(chan struct{}, 1),
		}
		p.tasks[key] = t
		go p.run(tctx, key, t)
		p.logger.Debug().
			Str("key", key.String()).
			Msg("started polling")
	}
	t.refs++

	var once sync.Once
	return func() {
		once.Do(func() { p.release(key, t) })
	}
}

// Refresh triggers an immediate fetch of key, even while one is in flight.
// It reports whether key is being polled.
func (p *Poller) Refresh(key Key) bool {
	p.mu.Lock()
	t, ok := p.tasks[key]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *Poller) Get(key Key) (Entry, bool) {
	return p.cache.Get(key)
}

// Active reports the number of keys being polled.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Close stops every task.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, t := range p.tasks {
		t.cancel()
		delete(p.tasks, key)
	}
}

// Value returns the last successfully fetched value of key.
func Value[T any](p *Poller, key Key) (T, bool) {
	var zero T
	e, ok := p.Get(key)
	if !ok || !e.Loaded {
		return zero, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (p *Poller) release(key Key, t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.refs--
	if t.refs > 0 {
		return
	}
	t.cancel()
	if p.tasks[key] == t {
		delete(p.tasks, key)
	}
	p.logger.Debug().
		Str("key", key.String()).
		Msg("stopped polling")
}

func (p *Poller) run(ctx context.Context, key Key, t *task) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx, key, t, true)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.tasks[key] == t {
				delete(p.tasks, key)
			}
			p.mu.Unlock()
			return
		case <-ticker.C:
			p.tick(ctx, key, t, false)
		case <-t.wake:
			p.tick(ctx, key, t, true)
		}
	}
}

// tick starts a fetch tagged with the next sequence number. Unless forced it
// is skipped while an earlier fetch is still in flight.
func (p *Poller) tick(ctx context.Context, key Key, t *task, force bool) {
	p.mu.Lock()
	if t.inflight > 0 && !force {
		p.mu.Unlock()
		return
	}
	t.issued++
	seq := t.issued
	t.inflight++
	p.mu.Unlock()

	go func() {
		v, err := t.fetch(ctx)
		p.apply(ctx, key, t, seq, v, err)
	}()
}

func (p *Poller) apply(ctx context.Context, key Key, t *task, seq uint64, v any, err error) {
	p.mu.Lock()
	t.inflight--
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if seq <= t.applied {
		p.mu.Unlock()
		p.logger.Debug().
			Str("key", key.String()).
			Uint64("seq", seq).
			Uint64("applied", t.applied).
			Msg("discarded stale response")
		return
	}
	t.applied = seq

	e, _ := p.cache.Peek(key)
	e.Seq = seq
	fireError := false
	if err == nil {
		e.Value = v
		e.Loaded = true
		e.UpdatedAt = p.now()
		e.Err = nil
		e.Failures = 0
	} else {
		e.Err = err
		if isFailure(err) {
			e.Failures++
			fireError = e.Failures == p.cfg.FailureThreshold
		}
	}
	p.cache.Add(key, e)
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug().
			Err(err).
			Str("key", key.String()).
			Int("failures", e.Failures).
			Msg("fetch failed, keeping cached value")
	}
	if fireError {
		p.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Int("failures", e.Failures).
			Msg("polling keeps failing")
		if p.cfg.OnError != nil {
			p.cfg.OnError(key, err)
		}
	}
	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(key, e)
	}
}

// isFailure reports whether err is a fault rather than a state the ledger
// reported, such as a denied read.
func isFailure(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindTransient, shared.KindUnknown:
		return true
	default:
		return false
	}
}
