package statring

import "testing"

func TestRingEvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 0; i < 5; i++ {
		r.Add(i)
	}
	got := r.Snapshot()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingAbsoluteIDsNeverReused(t *testing.T) {
	r := New[string](2)
	id0 := r.Add("a")
	id1 := r.Add("b")
	id2 := r.Add("c") // evicts "a"
	if id0 != 0 || id1 != 1 || id2 != 2 {
		t.Fatalf("got ids %d %d %d, want 0 1 2", id0, id1, id2)
	}
}

func TestRingLast(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 3; i++ {
		r.Add(i)
	}
	got := r.Last(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Last(2) = %v", got)
	}
}
