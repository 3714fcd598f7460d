package mqttpulse

import "time"

// TopicConfig is a declarative subscription spec consumed by the auto-wire
// component (C4). Fields mirror spec.md §3's TopicConfig: the resolved
// subscription topic is one of <t>, $share/<g>/<t>, or $queue/<t>, with
// enable_queue overriding enable_shared.
type TopicConfig struct {
	Topic          string
	QoS            byte
	EnableShared   bool
	GroupName      string
	EnableQueue    bool
	EnableMultiSub bool
	MultiSub       int
}

// Resolved computes the effective subscription topic per the queue >
// shared > plain precedence rule.
func (t TopicConfig) Resolved() string {
	switch {
	case t.EnableQueue:
		return "$queue/" + t.Topic
	case t.EnableShared:
		return "$share/" + t.GroupName + "/" + t.Topic
	default:
		return t.Topic
	}
}

// PoolConfig configures one named connection pool.
type PoolConfig struct {
	Name             string
	MinConnections   int
	MaxConnections   int
	MaxIdleTime      time.Duration
	ConnectTimeout   time.Duration
	HeartbeatInterval time.Duration
}

// ClientConfig configures how a new MQTT session is dialed.
type ClientConfig struct {
	Host             string
	Port             int
	ClientIDProvider ClientIDProvider
	KeepAlive        time.Duration
	Username         string
	Password         string
	ProtocolLevel    int // 4 = MQTT 3.1.1, 5 = MQTT 5
}

// DefaultClientIDProvider returns a provider that emits prefix plus a short
// random token per connection, matching spec.md §3's default.
func DefaultClientIDProvider(prefix string) ClientIDProvider {
	return func() string {
		return prefix + randomToken(8)
	}
}
