package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/statring"
	"github.com/gsoultan/mqttpulse/pkg/topic"
)

// FlowEntry is one row of the flow timeline: a message plus whichever
// rule name (if any) matched it when it crossed the wire.
type FlowEntry struct {
	Message     *mqttpulse.Message
	MatchedRule string
	Timestamp   time.Time
}

// FlowTimeline keeps the last capacity messages in arrival order for the
// shell's `flow` command.
type FlowTimeline struct {
	ring *statring.Ring[FlowEntry]
}

func NewFlowTimeline(capacity int) *FlowTimeline {
	return &FlowTimeline{ring: statring.New[FlowEntry](capacity)}
}

// Add appends one flow entry.
func (f *FlowTimeline) Add(m *mqttpulse.Message, matchedRule string) {
	f.ring.Add(FlowEntry{Message: m, MatchedRule: matchedRule, Timestamp: time.Now()})
}

// Render formats the last limit entries (0 = all stored) whose topic
// matches topicFilter ("" = no filter), one arrow line per message plus
// an optional "[RULE: name]" follow-up line.
func (f *FlowTimeline) Render(limit int, topicFilter string) string {
	entries := f.ring.Snapshot()
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	var sb strings.Builder
	for _, e := range entries {
		if topicFilter != "" && !topic.Matches(topicFilter, e.Message.Topic) {
			continue
		}
		arrow := "──▶ IN "
		if e.Message.Direction == mqttpulse.DirectionOutgoing {
			arrow = "◀── OUT"
		}
		fmt.Fprintf(&sb, "%s %s %s (qos=%d)\n", e.Timestamp.Format("15:04:05.000"), arrow, e.Message.Topic, e.Message.QoS)
		if e.MatchedRule != "" {
			fmt.Fprintf(&sb, "                      [RULE: %s] ⚡\n", e.MatchedRule)
		}
	}
	return sb.String()
}

// Reset empties the timeline.
func (f *FlowTimeline) Reset() { f.ring.Clear() }
