package preset

import (
	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/statring"
	"github.com/gsoultan/mqttpulse/pkg/topic"
)

// HistoryEntry pairs a stored Message with the absolute, never-reused
// index it was appended at.
type HistoryEntry struct {
	ID      int64
	Message *mqttpulse.Message
}

// History is a bounded window over the most recent messages observed,
// used by the shell's `history show|search` commands.
type History struct {
	ring *statring.Ring[HistoryEntry]
}

func NewHistory(capacity int) *History {
	return &History{ring: statring.New[HistoryEntry](capacity)}
}

// Add appends m, returning the absolute id assigned to it.
func (h *History) Add(m *mqttpulse.Message) int64 {
	return h.ring.AddFunc(func(id int64) HistoryEntry {
		return HistoryEntry{ID: id, Message: m}
	})
}

// Get returns the entry stored at id, if it is still within the window.
func (h *History) Get(id int64) (HistoryEntry, bool) {
	for _, e := range h.ring.Snapshot() {
		if e.ID == id {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

// GetLatest returns the most recently appended entry.
func (h *History) GetLatest() (HistoryEntry, bool) {
	last := h.ring.Last(1)
	if len(last) == 0 {
		return HistoryEntry{}, false
	}
	return last[0], true
}

// GetLatestID returns the absolute id of the most recently appended
// entry.
func (h *History) GetLatestID() (int64, bool) {
	e, ok := h.GetLatest()
	if !ok {
		return 0, false
	}
	return e.ID, true
}

// GetLast returns the n most recently appended entries, oldest-first.
func (h *History) GetLast(n int) []HistoryEntry {
	return h.ring.Last(n)
}

// Search returns every stored entry whose topic matches pattern
// (wildcards per pkg/topic), oldest-first.
func (h *History) Search(pattern string) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range h.ring.Snapshot() {
		if topic.Matches(pattern, e.Message.Topic) {
			out = append(out, e)
		}
	}
	return out
}

// Count reports how many entries are currently stored.
func (h *History) Count() int { return h.ring.Len() }

// Clear empties the window. Already-issued ids remain non-reusable: the
// ring's absolute counter is never reset.
func (h *History) Clear() { h.ring.Clear() }
