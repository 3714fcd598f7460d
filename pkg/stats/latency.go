package stats

import (
	"time"

	"github.com/gsoultan/mqttpulse/pkg/statring"
)

// LatencyRing keeps the last capacity round-trip latency samples
// (publish-to-receive, or broker ack latency depending on the caller) and
// derives min/max/avg and a coarse histogram from the current window.
type LatencyRing struct {
	ring *statring.Ring[time.Duration]
}

func NewLatencyRing(capacity int) *LatencyRing {
	return &LatencyRing{ring: statring.New[time.Duration](capacity)}
}

func (l *LatencyRing) Add(d time.Duration) { l.ring.Add(d) }

// LatencyStats summarizes the current window.
type LatencyStats struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

func (l *LatencyRing) Stats() LatencyStats {
	samples := l.ring.Snapshot()
	if len(samples) == 0 {
		return LatencyStats{}
	}
	st := LatencyStats{Count: len(samples), Min: samples[0], Max: samples[0]}
	var sum time.Duration
	for _, d := range samples {
		if d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
		sum += d
	}
	st.Avg = sum / time.Duration(len(samples))
	return st
}

// Bucket is one histogram bin: [Upper-bound exclusive).
type Bucket struct {
	UpperBound time.Duration
	Count      int
}

// Histogram buckets the current window into the given upper bounds (which
// must be ascending); any sample at or above the last bound falls into a
// final +Inf bucket.
func (l *LatencyRing) Histogram(bounds []time.Duration) []Bucket {
	buckets := make([]Bucket, len(bounds)+1)
	for i, b := range bounds {
		buckets[i].UpperBound = b
	}
	for _, d := range l.ring.Snapshot() {
		placed := false
		for i, b := range bounds {
			if d < b {
				buckets[i].Count++
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(bounds)].Count++
		}
	}
	return buckets
}
