package filter

import (
	"github.com/gsoultan/mqttpulse"
)

// Context is the per-message record the filter/rule engines evaluate
// field paths against. It is built once per Message and reused for every
// active filter/rule, so the payload is decoded only once per Message;
// GetValByPath still marshals the Context on every lookup.
type Context map[string]any

// BuildContext projects m into a Context: scalar envelope fields at the
// top level, plus the JSON-decoded payload nested under "payload" so
// dotted paths like "payload.sensor.id" resolve the same way
// evaluator.GetMsgValByPath resolves "after.<field>" in the teacher.
func BuildContext(m *mqttpulse.Message) Context {
	ctx := Context{
		"topic":     m.Topic,
		"qos":       int(m.QoS),
		"retain":    m.Retain,
		"dup":       m.Dup,
		"type":      string(m.Type),
		"direction": string(m.Direction),
		"pool":      m.Pool,
		"timestamp": m.Timestamp.UnixMilli(),
		"message_raw": m.RawPayload(),
	}
	if decoded, err := m.DecodedPayload(); err == nil && decoded != nil {
		ctx["payload"] = decoded
	}
	for k, v := range m.Properties {
		ctx["prop."+k] = v
	}
	return ctx
}
