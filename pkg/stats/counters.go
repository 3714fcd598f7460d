// Package stats implements the live counters, rolling windows, topic tree
// and flow timeline the interactive shell renders (spec.md §4.9): a
// total/in/out/error/subscribe/disconnect counter set, per-topic counts,
// a QoS histogram, a rate window, a latency ring, and an optional
// Prometheus exposition of the same counters.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Counters tracks the running totals the shell's `stats show` command
// reports. All fields are safe for concurrent use.
type Counters struct {
	Total       atomic.Int64
	In          atomic.Int64
	Out         atomic.Int64
	Errors      atomic.Int64
	Subscribes  atomic.Int64
	Disconnects atomic.Int64

	mu        sync.Mutex
	perTopic  map[string]int64
	qosHisto  [3]atomic.Int64 // index by QoS level 0/1/2
}

func NewCounters() *Counters {
	return &Counters{perTopic: make(map[string]int64)}
}

// RecordIn records one inbound (received) message on topic at qos.
func (c *Counters) RecordIn(topic string, qos byte) {
	c.Total.Add(1)
	c.In.Add(1)
	c.bumpTopic(topic)
	c.bumpQoS(qos)
}

// RecordOut records one outbound (published) message.
func (c *Counters) RecordOut(topic string, qos byte) {
	c.Total.Add(1)
	c.Out.Add(1)
	c.bumpTopic(topic)
	c.bumpQoS(qos)
}

func (c *Counters) RecordError()      { c.Errors.Add(1) }
func (c *Counters) RecordSubscribe()  { c.Subscribes.Add(1) }
func (c *Counters) RecordDisconnect() { c.Disconnects.Add(1) }

func (c *Counters) bumpTopic(topic string) {
	c.mu.Lock()
	c.perTopic[topic]++
	c.mu.Unlock()
}

func (c *Counters) bumpQoS(qos byte) {
	if qos <= 2 {
		c.qosHisto[qos].Add(1)
	}
}

// QoSHistogram returns a snapshot {0: n, 1: n, 2: n}.
func (c *Counters) QoSHistogram() map[byte]int64 {
	return map[byte]int64{
		0: c.qosHisto[0].Load(),
		1: c.qosHisto[1].Load(),
		2: c.qosHisto[2].Load(),
	}
}

// TopicCount is one entry of TopTopics' ranking.
type TopicCount struct {
	Topic string
	Count int64
}

// TopTopics returns the n busiest topics, most active first.
func (c *Counters) TopTopics(n int) []TopicCount {
	c.mu.Lock()
	out := make([]TopicCount, 0, len(c.perTopic))
	for t, n := range c.perTopic {
		out = append(out, TopicCount{Topic: t, Count: n})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Reset zeroes every counter, per-topic count and QoS bucket.
func (c *Counters) Reset() {
	c.Total.Store(0)
	c.In.Store(0)
	c.Out.Store(0)
	c.Errors.Store(0)
	c.Subscribes.Store(0)
	c.Disconnects.Store(0)
	for i := range c.qosHisto {
		c.qosHisto[i].Store(0)
	}
	c.mu.Lock()
	c.perTopic = make(map[string]int64)
	c.mu.Unlock()
}
