package preset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/filter"
)

func TestSaveGetCloneIsolatesStoredFilter(t *testing.T) {
	s := NewStore()
	f, err := filter.Compile("hot", "qos in (1, 2)")
	require.NoError(t, err)
	require.NoError(t, s.Save("hot_topics", f))

	got, ok := s.Get("hot_topics")
	require.True(t, ok)
	got.Clauses[0].Values[0] = 99

	got2, _ := s.Get("hot_topics")
	require.EqualValues(t, 1, got2.Clauses[0].Values[0])
}

func TestInvalidPresetName(t *testing.T) {
	s := NewStore()
	f, _ := filter.Compile("x", "qos = 1")
	err := s.Save("1bad", f)
	require.Error(t, err)
}

func TestDeleteListClear(t *testing.T) {
	s := NewStore()
	f, _ := filter.Compile("x", "qos = 1")
	require.NoError(t, s.Save("a", f))
	require.NoError(t, s.Save("b", f))
	require.True(t, s.Has("a"))
	require.True(t, s.Delete("a"))
	require.False(t, s.Has("a"))
	require.ElementsMatch(t, []string{"b"}, s.List())
	s.Clear()
	require.Empty(t, s.List())
}

func TestHistoryAbsoluteIDsAndSearch(t *testing.T) {
	h := NewHistory(2)
	m1 := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "a/b", 0, nil)
	m2 := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "c/d", 0, nil)
	m3 := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "a/e", 0, nil)

	id1 := h.Add(m1)
	id2 := h.Add(m2)
	id3 := h.Add(m3) // evicts m1

	require.Equal(t, int64(0), id1)
	require.Equal(t, int64(1), id2)
	require.Equal(t, int64(2), id3)

	_, ok := h.Get(id1)
	require.False(t, ok, "evicted entry should not be found")

	latestID, ok := h.GetLatestID()
	require.True(t, ok)
	require.Equal(t, id3, latestID)

	matches := h.Search("a/+")
	require.Len(t, matches, 1)
	require.Equal(t, "a/e", matches[0].Message.Topic)
}
