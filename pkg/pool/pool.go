// Package pool implements the bounded connection pool (spec.md §4.2): a
// per-name set of live MQTT sessions, context-bound affinity so a call
// chain sharing one context.Context reuses the same connection, idle
// eviction down to min_connections, and bounded-retry dialing.
//
// Context affinity is rendered as an explicit context.Context value
// carrying the bound *entry for this pool's name — Go has no goroutine-
// local storage, so the caller must thread the context BindContext
// returns through to subsequent Dispatch calls (SPEC_FULL.md §4.2/§9).
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gsoultan/mqttpulse"
)

// DialFunc opens one new Connection for pool name using clientCfg. The
// default production DialFunc (pkg/pool/paho.go) wraps
// github.com/eclipse/paho.mqtt.golang; tests inject an in-memory fake.
type DialFunc func(ctx context.Context, clientCfg mqttpulse.ClientConfig, pool string) (mqttpulse.Connection, error)

type entry struct {
	conn mqttpulse.Connection
}

// waiter is handed an *entry directly by releaseFunc when a caller is
// blocked in Acquire with the pool saturated (§5 "waiters form a FIFO
// queue"); it is never sent to once closed or once the waiter has given
// up, except for the in-flight buffered send racing a timeout (see
// cancelWaiter).
type waiter chan *entry

// Pool is a bounded set of Connections sharing one ClientConfig. Pool is
// safe for concurrent use.
type Pool struct {
	name      string
	cfg       mqttpulse.PoolConfig
	clientCfg mqttpulse.ClientConfig
	dial      DialFunc

	mu      sync.Mutex
	free    []*entry
	inUse   map[*entry]struct{}
	waiters []waiter
	closing bool
	closed  bool

	stopEvict chan struct{}
	evictDone chan struct{}
}

type ctxKeyType struct{ pool string }

// New constructs a Pool and dials min_connections eagerly. Dialing
// failures during warm-up are swallowed (they surface again on the next
// Acquire); a pool that cannot reach even one peer still needs to exist
// so the caller can retry later.
func New(cfg mqttpulse.PoolConfig, clientCfg mqttpulse.ClientConfig, dial DialFunc) *Pool {
	p := &Pool{
		name:      cfg.Name,
		cfg:       cfg,
		clientCfg: clientCfg,
		dial:      dial,
		inUse:     make(map[*entry]struct{}),
		stopEvict: make(chan struct{}),
		evictDone: make(chan struct{}),
	}
	for i := 0; i < cfg.MinConnections; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		conn, err := p.dialWithBackoff(ctx)
		cancel()
		if err != nil {
			continue
		}
		p.free = append(p.free, &entry{conn: conn})
	}
	if cfg.HeartbeatInterval > 0 {
		go p.evictLoop()
	} else {
		close(p.evictDone)
	}
	return p
}

func (p *Pool) dialWithBackoff(ctx context.Context) (mqttpulse.Connection, error) {
	var conn mqttpulse.Connection
	op := func() error {
		c, err := p.dial(ctx, p.clientCfg, p.name)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, &mqttpulse.ConnectFailedError{Pool: p.name, Err: err}
	}
	return conn, nil
}

// FromContext returns the Connection already bound to ctx for this pool,
// if BindContext previously stashed one there.
func (p *Pool) FromContext(ctx context.Context) (mqttpulse.Connection, bool) {
	e, ok := ctx.Value(ctxKeyType{pool: p.name}).(*entry)
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Acquire returns a Connection from the free list, dialing a new one if
// under max_connections, or waits for ctx to report the affinity decision
// already made for it. When the pool is saturated, Acquire blocks
// cooperatively on a FIFO wait queue for up to cfg.ConnectTimeout before
// failing with PoolExhaustedError (spec.md §4.2/§5). release must be
// called exactly once and never blocks.
func (p *Pool) Acquire(ctx context.Context) (mqttpulse.Connection, func(), error) {
	if conn, ok := p.FromContext(ctx); ok {
		// Context-bound: caller already owns this connection for the
		// lifetime of ctx. Release is a no-op — BindContext's release
		// owns the real return-to-pool.
		return conn, func() {}, nil
	}

	p.mu.Lock()
	if p.closing || p.closed {
		p.mu.Unlock()
		return nil, nil, &mqttpulse.PoolClosingError{Pool: p.name}
	}
	if n := len(p.free); n > 0 {
		e := p.free[n-1]
		p.free = p.free[:n-1]
		p.inUse[e] = struct{}{}
		p.mu.Unlock()
		return e.conn, p.releaseFunc(e), nil
	}
	total := len(p.inUse) + len(p.free)
	if total < p.cfg.MaxConnections {
		p.mu.Unlock()
		return p.dialNew(ctx)
	}

	w := make(waiter, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	return p.waitForEntry(ctx, w)
}

func (p *Pool) dialNew(ctx context.Context) (mqttpulse.Connection, func(), error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	conn, err := p.dialWithBackoff(dctx)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	if p.closing || p.closed {
		p.mu.Unlock()
		conn.Close()
		return nil, nil, &mqttpulse.PoolClosingError{Pool: p.name}
	}
	e := &entry{conn: conn}
	p.inUse[e] = struct{}{}
	p.mu.Unlock()
	return conn, p.releaseFunc(e), nil
}

// waitForEntry blocks on w until another caller's release hands this
// waiter a connection, ctx is canceled, or cfg.ConnectTimeout elapses —
// whichever comes first.
func (p *Pool) waitForEntry(ctx context.Context, w waiter) (mqttpulse.Connection, func(), error) {
	timer := time.NewTimer(p.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case e, ok := <-w:
		if !ok || e == nil {
			return nil, nil, &mqttpulse.PoolClosingError{Pool: p.name}
		}
		return e.conn, p.releaseFunc(e), nil
	case <-timer.C:
		if e := p.cancelWaiter(w); e != nil {
			p.releaseFunc(e)()
		}
		return nil, nil, &mqttpulse.PoolExhaustedError{Pool: p.name}
	case <-ctx.Done():
		if e := p.cancelWaiter(w); e != nil {
			p.releaseFunc(e)()
		}
		return nil, nil, ctx.Err()
	}
}

// cancelWaiter removes w from the wait queue. If it is no longer queued,
// a release already popped it and is in the middle of (or has just
// finished) handing it an *entry; drain that buffered send so the
// connection isn't leaked, handing it back to p for the next caller.
func (p *Pool) cancelWaiter(w waiter) *entry {
	p.mu.Lock()
	for i, ww := range p.waiters {
		if ww == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil
		}
	}
	p.mu.Unlock()
	select {
	case e := <-w:
		return e
	default:
		return nil
	}
}

func (p *Pool) releaseFunc(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.closing || !e.conn.Active() {
				delete(p.inUse, e)
				p.mu.Unlock()
				e.conn.Close()
				return
			}
			if n := len(p.waiters); n > 0 {
				w := p.waiters[0]
				p.waiters = p.waiters[1:]
				// Ownership transfers straight to w; e stays in
				// p.inUse since it is still in use, just by a
				// different caller now.
				p.mu.Unlock()
				w <- e
				return
			}
			delete(p.inUse, e)
			p.free = append(p.free, e)
			p.mu.Unlock()
		})
	}
}

// BindContext acquires a Connection and returns a derived context carrying
// it, so every downstream call that threads the returned context reuses
// the same Connection (spec.md §4.2 context affinity). release returns
// the Connection to the pool; it must be called when the bound call
// chain is done.
func (p *Pool) BindContext(ctx context.Context) (context.Context, func(), error) {
	conn, release, err := p.Acquire(ctx)
	if err != nil {
		return ctx, nil, err
	}
	bound := context.WithValue(ctx, ctxKeyType{pool: p.name}, &entry{conn: conn})
	return bound, release, nil
}

func (p *Pool) evictLoop() {
	defer close(p.evictDone)
	t := time.NewTicker(p.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopEvict:
			return
		case <-t.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.MaxIdleTime <= 0 {
		return
	}
	floor := p.cfg.MinConnections
	kept := p.free[:0]
	now := time.Now()
	for _, e := range p.free {
		if len(kept)+len(p.inUse) < floor || now.Sub(e.conn.LastUsedAt()) < p.cfg.MaxIdleTime {
			kept = append(kept, e)
			continue
		}
		e.conn.Close()
	}
	p.free = kept
}

// Stats reports the pool's current free and in-use counts and its
// configured maximum.
type Stats struct {
	Free   int
	InUse  int
	Max    int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Free: len(p.free), InUse: len(p.inUse), Max: p.cfg.MaxConnections}
}

// Close marks the pool closing: no new Acquire succeeds, and every free
// and in-use connection is closed as it is released or immediately for
// the currently-free set. In-flight calls on in-use connections are not
// interrupted; they fail their own Close() once released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	p.closed = true
	free := p.free
	p.free = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	close(p.stopEvict)
	<-p.evictDone

	for _, e := range free {
		e.conn.Close()
	}
	return nil
}
