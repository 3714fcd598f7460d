package mqttpulse

import (
	"encoding/json"
	"sync"
	"time"
)

// Properties is the opaque MQTT 5 property bag carried on publish/subscribe
// calls and on received messages. Values are scalars (string, number, bool);
// the core never interprets them.
type Properties map[string]any

// Clone returns a shallow copy, used when building a new immutable Message.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Message is the transport-neutral record emitted by the dispatcher and
// consumed by the event bus, the debug tap and the shell pipeline. It is
// immutable after construction: every field is set once by NewMessage and
// never mutated. The JSON-decoded payload view is computed lazily and
// cached behind a sync.Once so repeated Context extraction (filter/rule
// engine) does not re-parse the payload.
type Message struct {
	Type       MessageType
	Direction  Direction
	Topic      string
	QoS        byte
	Retain     bool
	Dup        bool
	Payload    []byte
	Properties Properties
	Pool       string
	Timestamp  time.Time

	decodeOnce sync.Once
	decoded    any
	decodeErr  error
}

// MessageOption customizes a Message at construction time.
type MessageOption func(*Message)

func WithProperties(p Properties) MessageOption {
	return func(m *Message) { m.Properties = p.Clone() }
}

func WithRetain(retain bool) MessageOption {
	return func(m *Message) { m.Retain = retain }
}

func WithDup(dup bool) MessageOption {
	return func(m *Message) { m.Dup = dup }
}

func WithPool(pool string) MessageOption {
	return func(m *Message) { m.Pool = pool }
}

// WithTimestamp overrides the default time.Now() timestamp, used when
// reconstructing a Message from a wire format that already carries one
// (the debug tap's WireMessage).
func WithTimestamp(ts time.Time) MessageOption {
	return func(m *Message) {
		if !ts.IsZero() {
			m.Timestamp = ts
		}
	}
}

// NewMessage builds an immutable Message. timestamp defaults to time.Now()
// when zero, giving callers a seam for deterministic tests.
func NewMessage(typ MessageType, dir Direction, topic string, qos byte, payload []byte, opts ...MessageOption) *Message {
	m := &Message{
		Type:      typ,
		Direction: dir,
		Topic:     topic,
		QoS:       qos,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DecodedPayload returns the JSON-decoded view of Payload: a
// map[string]interface{}, a []interface{}, or a scalar, matching whatever
// shape the payload actually decodes to. A payload that is not valid JSON
// decodes to nil with a non-nil error recorded on first access only.
func (m *Message) DecodedPayload() (any, error) {
	m.decodeOnce.Do(func() {
		if len(m.Payload) == 0 {
			return
		}
		m.decodeErr = json.Unmarshal(m.Payload, &m.decoded)
	})
	return m.decoded, m.decodeErr
}

// RawPayload returns Payload as a string, used by the filter engine's
// `message_raw` Context field.
func (m *Message) RawPayload() string {
	return string(m.Payload)
}
