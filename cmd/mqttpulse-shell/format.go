package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gsoultan/mqttpulse"
)

// renderMessage formats msg per one of the shell's three display modes
// (spec.md §4.6's `format compact|vertical|json`).
func renderMessage(msg *mqttpulse.Message, format string) string {
	switch format {
	case "json":
		return renderJSON(msg)
	case "vertical":
		return renderVertical(msg)
	default:
		return renderCompact(msg)
	}
}

func renderCompact(msg *mqttpulse.Message) string {
	arrow := "IN "
	if msg.Direction == mqttpulse.DirectionOutgoing {
		arrow = "OUT"
	}
	return fmt.Sprintf("%s %s %s qos=%d retain=%t %s",
		msg.Timestamp.Format("15:04:05.000"), arrow, msg.Topic, msg.QoS, msg.Retain, msg.RawPayload())
}

func renderVertical(msg *mqttpulse.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "---\n")
	fmt.Fprintf(&sb, "time:      %s\n", msg.Timestamp.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&sb, "direction: %s\n", msg.Direction)
	fmt.Fprintf(&sb, "pool:      %s\n", msg.Pool)
	fmt.Fprintf(&sb, "topic:     %s\n", msg.Topic)
	fmt.Fprintf(&sb, "qos:       %d\n", msg.QoS)
	fmt.Fprintf(&sb, "retain:    %t\n", msg.Retain)
	fmt.Fprintf(&sb, "dup:       %t\n", msg.Dup)
	fmt.Fprintf(&sb, "payload:   %s\n", msg.RawPayload())
	return sb.String()
}

func renderJSON(msg *mqttpulse.Message) string {
	decoded, _ := msg.DecodedPayload()
	row := map[string]any{
		"time":      msg.Timestamp,
		"direction": msg.Direction,
		"pool":      msg.Pool,
		"topic":     msg.Topic,
		"qos":       msg.QoS,
		"retain":    msg.Retain,
		"dup":       msg.Dup,
		"payload":   decoded,
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
