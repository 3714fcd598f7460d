// Package tap implements the debug tap (spec.md §4.6): a local IPC server
// that mirrors live MQTT traffic as newline-delimited JSON to any number
// of subscribing shells, plus a small command protocol (ping, ad-hoc
// filter subscribe/unsubscribe) the shell drives interactively.
//
// Grounded on the teacher's internal/sse.Hub fan-out (per-subscriber
// bounded channel, drop-on-backpressure) generalized from an HTTP SSE
// response writer to a net.Conn-backed encoder/decoder pair over a Unix
// domain socket.
package tap

import (
	"time"

	"github.com/gsoultan/mqttpulse"
)

// FrameType tags one line of the tap wire protocol.
type FrameType string

const (
	FrameWelcome      FrameType = "welcome"
	FrameMessage      FrameType = "message"
	FramePing         FrameType = "ping"
	FramePong         FrameType = "pong"
	FrameSubscribe    FrameType = "subscribe"
	FrameUnsubscribe  FrameType = "unsubscribe"
	FrameAck          FrameType = "ack"
	FrameError        FrameType = "error"
)

// Frame is the fixed wire schema every line on the tap socket decodes to.
// Which optional fields are populated depends on the FrameType.
type Frame struct {
	Type      FrameType        `json:"type"`
	Time      time.Time        `json:"time"`
	Message   *WireMessage     `json:"message,omitempty"`
	Filter    string           `json:"filter,omitempty"`
	SubID     string           `json:"sub_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	ServerTag string           `json:"server,omitempty"`
}

// WireMessage is the JSON projection of mqttpulse.Message sent over the
// tap: payload is base64-by-default via json.Marshal's []byte handling,
// with a best-effort decoded view attached for shells that want to filter
// client-side without a second decode pass.
type WireMessage struct {
	Type      mqttpulse.MessageType `json:"type"`
	Direction mqttpulse.Direction   `json:"direction"`
	Topic     string                `json:"topic"`
	QoS       byte                  `json:"qos"`
	Retain    bool                  `json:"retain"`
	Dup       bool                  `json:"dup"`
	Payload   []byte                `json:"payload"`
	Decoded   any                   `json:"decoded,omitempty"`
	Pool      string                `json:"pool"`
	Timestamp time.Time             `json:"timestamp"`
}

// ToWireMessage projects m into the tap's wire schema.
func ToWireMessage(m *mqttpulse.Message) WireMessage {
	decoded, _ := m.DecodedPayload()
	return WireMessage{
		Type:      m.Type,
		Direction: m.Direction,
		Topic:     m.Topic,
		QoS:       m.QoS,
		Retain:    m.Retain,
		Dup:       m.Dup,
		Payload:   m.Payload,
		Decoded:   decoded,
		Pool:      m.Pool,
		Timestamp: m.Timestamp,
	}
}
