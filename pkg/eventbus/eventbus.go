// Package eventbus implements the in-process, typed publish/subscribe bus
// described in spec.md §4.5: one handler list per event kind, synchronous
// dispatch on the emitter's goroutine, emission-order delivery per handler.
//
// Grounded on the teacher's internal/sse.Hub (per-topic subscriber map,
// non-blocking send-or-drop), generalized from string SSE topics to a
// fixed, typed event-kind registry since the dispatcher (C3) needs
// compile-time safety on event payload shapes rather than an `any` channel.
package eventbus

import (
	"sync"

	"github.com/gsoultan/mqttpulse"
)

// Kind enumerates the lifecycle events the bus carries.
type Kind string

const (
	OnConnect     Kind = "connect"
	OnPublish     Kind = "publish"
	OnReceive     Kind = "receive"
	OnSubscribe   Kind = "subscribe"
	OnUnsubscribe Kind = "unsubscribe"
	OnDisconnect  Kind = "disconnect"
	OnRuleError   Kind = "rule_action_error"
)

// Event is the payload carried for every Kind; Message is nil for events
// that are not message-shaped (e.g. a rule action error).
type Event struct {
	Kind        Kind
	Message     *mqttpulse.Message
	Pool        string
	ReasonCode  byte
	Err         error
	RuleName    string
	ActionName  string
}

// Handler processes one Event synchronously on the emitter's goroutine. A
// slow handler stalls the receive loop that emitted the event; handlers
// doing real work must hand off to their own goroutine/channel.
type Handler func(Event)

// Bus is a per-process registry of Kind -> ordered handler list.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers h for events of kind k. Returns an unsubscribe func.
func (b *Bus) Subscribe(k Kind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[k] = append(b.handlers[k], h)
	idx := len(b.handlers[k]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[k]
		if idx < len(hs) {
			hs[idx] = nil // keep slice indices stable for concurrent Subscribe callers
		}
	}
}

// Emit delivers ev to every handler registered for ev.Kind, in
// subscription order, on the calling goroutine. Subscribers must not
// re-enter Emit for the same Kind (spec.md §5).
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if h != nil {
			h(ev)
		}
	}
}
