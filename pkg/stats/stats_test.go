package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersRecordAndTopTopics(t *testing.T) {
	c := NewCounters()
	c.RecordIn("a/b", 0)
	c.RecordIn("a/b", 1)
	c.RecordIn("c/d", 0)
	c.RecordOut("a/b", 0)

	require.EqualValues(t, 4, c.Total.Load())
	require.EqualValues(t, 3, c.In.Load())
	require.EqualValues(t, 1, c.Out.Load())

	top := c.TopTopics(1)
	require.Len(t, top, 1)
	require.Equal(t, "a/b", top[0].Topic)
	require.EqualValues(t, 3, top[0].Count)

	histo := c.QoSHistogram()
	require.EqualValues(t, 3, histo[0])
	require.EqualValues(t, 1, histo[1])
}

func TestCountersReset(t *testing.T) {
	c := NewCounters()
	c.RecordIn("a/b", 0)
	c.Reset()
	require.EqualValues(t, 0, c.Total.Load())
	require.Empty(t, c.TopTopics(0))
}

func TestRateWindowAdvancesAndDecays(t *testing.T) {
	w := NewRateWindow(5)
	base := time.Unix(1000, 0)
	w.Add(base)
	w.Add(base)
	require.InDelta(t, 2.0/5.0, w.RatePerSecond(base), 0.001)

	later := base.Add(10 * time.Second)
	require.InDelta(t, 0, w.RatePerSecond(later), 0.001)
}

func TestLatencyRingStats(t *testing.T) {
	l := NewLatencyRing(10)
	l.Add(10 * time.Millisecond)
	l.Add(20 * time.Millisecond)
	l.Add(30 * time.Millisecond)
	st := l.Stats()
	require.Equal(t, 3, st.Count)
	require.Equal(t, 10*time.Millisecond, st.Min)
	require.Equal(t, 30*time.Millisecond, st.Max)
	require.Equal(t, 20*time.Millisecond, st.Avg)
}

func TestTopicTreeRenderShowsCounts(t *testing.T) {
	tree := NewTopicTree(time.Minute)
	now := time.Now()
	tree.Add("sensors/r1/temp", `{"v":1}`, now)
	tree.Add("sensors/r1/temp", `{"v":2}`, now)
	tree.Add("sensors/r2/temp", `{"v":3}`, now)

	out := tree.Render(now)
	require.Contains(t, out, "sensors")
	require.Contains(t, out, "r1")
	require.Contains(t, out, "(2)")
}
