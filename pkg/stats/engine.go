package stats

import (
	"time"

	"github.com/gsoultan/mqttpulse/pkg/eventbus"
)

// Engine bundles Counters, a RateWindow, a LatencyRing, a TopicTree and a
// FlowTimeline behind the event bus: subscribing once feeds the counters,
// rate window and flow timeline from every OnReceive/OnPublish event and
// the topic tree from OnReceive, matching spec.md §4.9's "stats and
// visualizations" surface as one cohesive unit. The LatencyRing is fed
// only through its own Add.
type Engine struct {
	Counters *Counters
	Rate     *RateWindow
	Latency  *LatencyRing
	Tree     *TopicTree
	Flow     *FlowTimeline
}

// NewEngine builds an Engine sized by the given windows/capacities.
func NewEngine(rateWindowSeconds, latencyCapacity, flowCapacity int, topicActivityTimeout time.Duration) *Engine {
	return &Engine{
		Counters: NewCounters(),
		Rate:     NewRateWindow(rateWindowSeconds),
		Latency:  NewLatencyRing(latencyCapacity),
		Tree:     NewTopicTree(topicActivityTimeout),
		Flow:     NewFlowTimeline(flowCapacity),
	}
}

// AttachBus subscribes the engine to bus's OnReceive and OnPublish
// events; returns a combined unsubscribe func.
func (e *Engine) AttachBus(bus *eventbus.Bus) func() {
	unsubIn := bus.Subscribe(eventbus.OnReceive, func(ev eventbus.Event) {
		if ev.Message == nil {
			return
		}
		now := time.Now()
		e.Counters.RecordIn(ev.Message.Topic, ev.Message.QoS)
		e.Rate.Add(now)
		e.Tree.Add(ev.Message.Topic, ev.Message.RawPayload(), now)
		e.Flow.Add(ev.Message, "")
	})
	unsubOut := bus.Subscribe(eventbus.OnPublish, func(ev eventbus.Event) {
		if ev.Message == nil {
			return
		}
		now := time.Now()
		e.Counters.RecordOut(ev.Message.Topic, ev.Message.QoS)
		e.Rate.Add(now)
		e.Flow.Add(ev.Message, "")
	})
	unsubSub := bus.Subscribe(eventbus.OnSubscribe, func(eventbus.Event) { e.Counters.RecordSubscribe() })
	unsubDisc := bus.Subscribe(eventbus.OnDisconnect, func(eventbus.Event) { e.Counters.RecordDisconnect() })
	unsubErr := bus.Subscribe(eventbus.OnRuleError, func(eventbus.Event) { e.Counters.RecordError() })
	return func() {
		unsubIn()
		unsubOut()
		unsubSub()
		unsubDisc()
		unsubErr()
	}
}

// Reset zeroes every counter and window the engine owns.
func (e *Engine) Reset() {
	e.Counters.Reset()
	e.Tree.Reset()
	e.Flow.Reset()
	e.Rate.mu.Lock()
	for i := range e.Rate.buckets {
		e.Rate.buckets[i] = 0
	}
	e.Rate.lastSec = 0
	e.Rate.mu.Unlock()
	e.Latency.ring.Clear()
}
