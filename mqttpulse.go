// Package mqttpulse defines the shared data model and contracts used across
// the connection pool, dispatcher, debug tap and shell packages: the
// Message DTO, the declarative TopicConfig/PoolConfig/ClientConfig records,
// the Connection contract the pool manages, and the error taxonomy.
package mqttpulse

import (
	"context"
	"time"
)

// MessageType classifies a Message the way the dispatcher and event bus
// tag it: publish traffic, subscription lifecycle, or shell-internal events.
type MessageType string

const (
	MessagePublish     MessageType = "publish"
	MessageSubscribe   MessageType = "subscribe"
	MessageUnsubscribe MessageType = "unsubscribe"
	MessageDisconnect  MessageType = "disconnect"
	MessageSystem      MessageType = "system"
	MessageError       MessageType = "error"
	MessageData        MessageType = "data"
)

// Direction tags which side of the wire a Message crossed.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionInternal Direction = "internal"
)

// Connection is the opaque handle the pool hands out. It wraps one
// authenticated MQTT session. Implementations must be safe for one
// concurrent reader (receive) and one concurrent writer (publish/subscribe)
// at a time, per the single-reader receive-loop invariant in §5.
type Connection interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte, props Properties) error
	Subscribe(ctx context.Context, topic string, qos byte, props Properties) error
	Unsubscribe(ctx context.Context, topic string) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
	Active() bool
	LastUsedAt() time.Time
	ClientID() string
}

// ClientIDProvider generates a client id for a new connection.
type ClientIDProvider func() string
