// Package dispatch implements the single entry point through which every
// pool operation flows (spec.md §4.3): one Operation enum, one Dispatch
// method, and ergonomic typed wrappers over it. It also owns the receive
// loop registry that keeps subscribe idempotent and funnels inbound
// Messages onto the event bus.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/pool"
)

// Operation identifies which pool call Dispatch performs. Rendered as a
// closed enum rather than a dynamic method name lookup, per SPEC_FULL.md
// §4.3 DESIGN NOTES.
type Operation int

const (
	OpConnect Operation = iota
	OpPublish
	OpSubscribe
	OpUnsubscribe
	OpMultiSub
)

func (o Operation) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpPublish:
		return "publish"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	case OpMultiSub:
		return "multi_sub"
	default:
		return "unknown"
	}
}

// Request carries every field any Operation might need; unused fields are
// simply ignored for a given Op.
type Request struct {
	Op         Operation
	Pool       string
	Topic      string
	QoS        byte
	Retain     bool
	Payload    []byte
	Properties mqttpulse.Properties
	Workers    int // OpMultiSub fan-out width
}

type loopKey struct {
	pool     string
	clientID string
	topic    string
}

// loopHandle owns everything a running receive loop needs torn down:
// cancel stops the loop goroutine, release returns its pinned connection
// to the pool. The connection backing a loop is never returned to the
// pool's free list while the loop is draining it (spec.md §5: "exactly
// one coroutine drains a given connection's inbound stream") — release
// only runs once the loop actually exits, whether via Unsubscribe's
// cancel or the connection reporting itself closed.
type loopHandle struct {
	conn    mqttpulse.Connection
	cancel  context.CancelFunc
	release func()
}

// Dispatcher routes Requests to named pools and tracks every running
// receive loop so the same (pool, clientID, topic) triple never gets a
// second loop (spec.md §4.3 idempotency invariant).
type Dispatcher struct {
	bus *eventbus.Bus

	mu       sync.Mutex
	pools    map[string]*pool.Pool
	loops    map[loopKey]loopHandle
	limiters map[string]*rate.Limiter
}

func New(bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		pools:    make(map[string]*pool.Pool),
		loops:    make(map[loopKey]loopHandle),
		limiters: make(map[string]*rate.Limiter),
	}
}

// RegisterPool makes name available to Dispatch/the typed wrappers.
func (d *Dispatcher) RegisterPool(name string, p *pool.Pool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pools[name] = p
}

// BindContext acquires a connection from poolName and returns a context
// derived from ctx carrying it, so every Dispatch/typed-wrapper call made
// with the returned context reuses that same connection (spec.md §4.2
// context affinity, headline capability (a) in §1). This is the only
// entry point that establishes affinity — callers that want a
// Subscribe/Publish/MultiSub call to land on a specific shared connection
// must thread the context this returns, not a bare context.Context, into
// those calls. release returns the connection once every call made under
// the bound context is done.
func (d *Dispatcher) BindContext(ctx context.Context, poolName string) (context.Context, func(), error) {
	p, err := d.pool(poolName)
	if err != nil {
		return ctx, nil, err
	}
	return p.BindContext(ctx)
}

// SetPublishRateLimit bounds how fast Publish may send on poolName, using
// a token bucket of the given sustained rate and burst size. Useful for a
// pool fronting a broker with its own ingest quota; unset pools publish
// at whatever rate the caller drives them.
func (d *Dispatcher) SetPublishRateLimit(poolName string, eventsPerSecond float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limiters[poolName] = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}

func (d *Dispatcher) publishLimiter(poolName string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limiters[poolName]
}

func (d *Dispatcher) pool(name string) (*pool.Pool, error) {
	d.mu.Lock()
	p, ok := d.pools[name]
	d.mu.Unlock()
	if !ok {
		return nil, &mqttpulse.ConfigError{Msg: fmt.Sprintf("unknown pool %q", name)}
	}
	return p, nil
}

// Dispatch is the single entry point for every pool operation. The typed
// wrappers (Publish, Subscribe, ...) below are the ergonomic surface most
// callers use; Dispatch exists for callers that build a Request
// generically from an Operation value.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	switch req.Op {
	case OpConnect:
		return d.Connect(ctx, req.Pool)
	case OpPublish:
		return d.Publish(ctx, req.Pool, req.Topic, req.QoS, req.Retain, req.Payload, req.Properties)
	case OpSubscribe:
		return d.Subscribe(ctx, req.Pool, req.Topic, req.QoS, req.Properties)
	case OpUnsubscribe:
		return d.Unsubscribe(ctx, req.Pool, req.Topic)
	case OpMultiSub:
		return d.MultiSub(ctx, req.Pool, req.Topic, req.QoS, req.Properties, req.Workers)
	default:
		return &mqttpulse.InvalidMethodError{Method: req.Op.String()}
	}
}

// Connect forces a connection to exist by acquiring and immediately
// releasing one, surfacing ConnectFailedError early rather than on the
// first real operation. It does not bind the connection to ctx; use
// BindContext for that.
func (d *Dispatcher) Connect(ctx context.Context, poolName string) error {
	p, err := d.pool(poolName)
	if err != nil {
		return err
	}
	conn, release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	d.bus.Emit(eventbus.Event{Kind: eventbus.OnConnect, Pool: poolName, Message: connectMessage(poolName, conn.ClientID())})
	return nil
}

func connectMessage(poolName, clientID string) *mqttpulse.Message {
	return mqttpulse.NewMessage(mqttpulse.MessageSystem, mqttpulse.DirectionInternal, "", 0, []byte(clientID), mqttpulse.WithPool(poolName))
}

// Publish serializes onto a single connection from poolName: acquiring
// the same context-bound connection for ctx when one exists, otherwise a
// free connection from the pool.
func (d *Dispatcher) Publish(ctx context.Context, poolName, topic string, qos byte, retain bool, payload []byte, props mqttpulse.Properties) error {
	p, err := d.pool(poolName)
	if err != nil {
		return err
	}
	if limiter := d.publishLimiter(poolName); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			// Wait refuses up front when the deadline is too near for a
			// token; report that as the deadline being exceeded.
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return err
		}
	}
	conn, release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := conn.Publish(ctx, topic, qos, retain, payload, props); err != nil {
		return err
	}
	msg := mqttpulse.NewMessage(mqttpulse.MessagePublish, mqttpulse.DirectionOutgoing, topic, qos, payload,
		mqttpulse.WithRetain(retain), mqttpulse.WithProperties(props), mqttpulse.WithPool(poolName))
	d.bus.Emit(eventbus.Event{Kind: eventbus.OnPublish, Pool: poolName, Message: msg})
	return nil
}

// Subscribe issues one subscribe call and starts exactly one receive loop
// for (poolName, conn.ClientID(), topic). Re-invocation for a topic that
// already has a running loop on poolName is a no-op (spec.md §4.4). The
// acquired connection is pinned in the pool (never returned to the free
// list) for as long as its loop runs; it is only released when the loop
// itself exits, via Unsubscribe or the connection closing on its own.
func (d *Dispatcher) Subscribe(ctx context.Context, poolName, topic string, qos byte, props mqttpulse.Properties) error {
	p, err := d.pool(poolName)
	if err != nil {
		return err
	}
	if _, _, running := d.loopFor(poolName, topic); running {
		return nil
	}
	conn, release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := conn.Subscribe(ctx, topic, qos, props); err != nil {
		release()
		return err
	}
	d.bus.Emit(eventbus.Event{
		Kind:    eventbus.OnSubscribe,
		Pool:    poolName,
		Message: mqttpulse.NewMessage(mqttpulse.MessageSubscribe, mqttpulse.DirectionOutgoing, topic, qos, nil, mqttpulse.WithPool(poolName)),
	})
	if !d.startLoop(poolName, conn, topic, release) {
		// A loop for this (pool, clientID, topic) triple is already
		// running — this acquisition only happens when ctx is bound to
		// the same connection that loop is already draining, so nothing
		// new needs pinning.
		release()
	}
	return nil
}

// MultiSub fans a single subscription out across n independent
// connections from the pool, each running its own receive loop — true
// worker-per-connection fan-out, CONFIRMED in SPEC_FULL.md §9. Each
// worker acquires with context.Background(), never ctx itself:
// context.WithoutCancel(ctx) would still delegate ctx.Value lookups to
// the parent, so a caller whose ctx is already bound to poolName (via
// BindContext) would otherwise hand every worker the SAME connection
// instead of n distinct ones. Loops already running for (poolName, topic)
// count toward n, so re-invoking MultiSub only starts the missing workers.
func (d *Dispatcher) MultiSub(ctx context.Context, poolName, topic string, qos byte, props mqttpulse.Properties, n int) error {
	if n <= 0 {
		n = 1
	}
	p, err := d.pool(poolName)
	if err != nil {
		return err
	}
	existing := 0
	d.mu.Lock()
	for k := range d.loops {
		if k.pool == poolName && k.topic == topic {
			existing++
		}
	}
	d.mu.Unlock()
	for i := existing; i < n; i++ {
		conn, release, err := p.Acquire(context.Background())
		if err != nil {
			return fmt.Errorf("multi_sub worker %d: %w", i, err)
		}
		if err := conn.Subscribe(ctx, topic, qos, props); err != nil {
			release()
			return fmt.Errorf("multi_sub worker %d: %w", i, err)
		}
		if !d.startLoop(poolName, conn, topic, release) {
			release()
		}
	}
	d.bus.Emit(eventbus.Event{
		Kind:    eventbus.OnSubscribe,
		Pool:    poolName,
		Message: mqttpulse.NewMessage(mqttpulse.MessageSubscribe, mqttpulse.DirectionOutgoing, topic, qos, nil, mqttpulse.WithPool(poolName)),
	})
	return nil
}

// Unsubscribe issues the unsubscribe call on the connection that is
// actually running topic's receive loop and stops that loop. It does not
// go through p.Acquire: that connection is pinned (permanently in-use)
// for as long as its loop runs, so acquiring a pool entry here would
// either hand back an unrelated connection or, in a saturated
// single-connection pool, block forever waiting for the very connection
// this call needs to reach. A no-op (nil error) if topic has no running
// loop on poolName.
func (d *Dispatcher) Unsubscribe(ctx context.Context, poolName, topic string) error {
	if _, err := d.pool(poolName); err != nil {
		return err
	}
	key, h, ok := d.loopFor(poolName, topic)
	if !ok {
		return nil
	}
	if err := h.conn.Unsubscribe(ctx, topic); err != nil {
		return err
	}
	d.stopLoopKey(key)
	d.bus.Emit(eventbus.Event{
		Kind:    eventbus.OnUnsubscribe,
		Pool:    poolName,
		Message: mqttpulse.NewMessage(mqttpulse.MessageUnsubscribe, mqttpulse.DirectionOutgoing, topic, 0, nil, mqttpulse.WithPool(poolName)),
	})
	return nil
}

// loopFor returns the first registered loop for (poolName, topic),
// regardless of which connection's clientID it runs on.
func (d *Dispatcher) loopFor(poolName, topic string) (loopKey, loopHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, h := range d.loops {
		if k.pool == poolName && k.topic == topic {
			return k, h, true
		}
	}
	return loopKey{}, loopHandle{}, false
}

// startLoop registers and starts a receive loop for (poolName,
// conn.ClientID(), topic), pinning release until the loop exits. It
// reports false without starting anything if a loop for that triple is
// already running, in which case the caller owns release and must call
// it itself.
func (d *Dispatcher) startLoop(poolName string, conn mqttpulse.Connection, topic string, release func()) bool {
	key := loopKey{pool: poolName, clientID: conn.ClientID(), topic: topic}

	d.mu.Lock()
	if _, running := d.loops[key]; running {
		d.mu.Unlock()
		return false
	}
	lctx, cancel := context.WithCancel(context.Background())
	d.loops[key] = loopHandle{conn: conn, cancel: cancel, release: release}
	d.mu.Unlock()

	go d.receiveLoop(lctx, poolName, conn, topic, key, release)
	return true
}

func (d *Dispatcher) stopLoopKey(key loopKey) {
	d.mu.Lock()
	h, ok := d.loops[key]
	if ok {
		delete(d.loops, key)
	}
	d.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// receiveLoop pulls Messages off one Connection and emits them on the bus
// in the order the broker delivered them; it exits when lctx is canceled
// or the connection reports it is closed, releasing its pinned connection
// back to the pool exactly once either way.
func (d *Dispatcher) receiveLoop(lctx context.Context, poolName string, conn mqttpulse.Connection, topic string, key loopKey, release func()) {
	defer func() {
		d.mu.Lock()
		delete(d.loops, key)
		d.mu.Unlock()
		release()
	}()
	for {
		msg, err := conn.Receive(lctx)
		if err != nil {
			if lctx.Err() != nil {
				return
			}
			d.bus.Emit(eventbus.Event{Kind: eventbus.OnDisconnect, Pool: poolName, Err: err})
			return
		}
		if msg.Pool == "" {
			// Messages are never mutated after construction: tag the pool
			// on a rebuilt copy instead.
			msg = mqttpulse.NewMessage(msg.Type, msg.Direction, msg.Topic, msg.QoS, msg.Payload,
				mqttpulse.WithRetain(msg.Retain), mqttpulse.WithDup(msg.Dup), mqttpulse.WithProperties(msg.Properties),
				mqttpulse.WithPool(poolName), mqttpulse.WithTimestamp(msg.Timestamp))
		}
		d.bus.Emit(eventbus.Event{Kind: eventbus.OnReceive, Pool: poolName, Message: msg})
	}
}

// ActiveLoops reports how many receive loops are currently running,
// mainly for tests.
func (d *Dispatcher) ActiveLoops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.loops)
}
