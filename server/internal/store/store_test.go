package store

import (
	"sync"
	"testing"
	"time"

	"github.com/gateload/gateload/pkg/types"
)

// baseMinute is a fixed reference point so all record minutes are deterministic.
var baseMinute = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// rec builds a record for cp at baseMinute + n minutes.
func rec(cp string, n int, level types.Level) types.HistoryRecord {
	return types.HistoryRecord{
		Minute:       baseMinute.Add(time.Duration(n) * time.Minute),
		CheckpointID: cp,
		Count:        n,
		Level:        level,
	}
}

func TestStore_AppendAndSnapshotOrder(t *testing.T) {
	st := New(5)
	for i := 0; i < 3; i++ {
		st.Append(rec("CP1", i, types.LevelGreen))
	}
	got := st.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, r := range got {
		if r.Count != i {
			t.Errorf("snapshot[%d].Count = %d, want %d", i, r.Count, i)
		}
	}
}

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	const capacity = 4
	st := New(capacity)
	for i := 0; i <= capacity; i++ {
		st.Append(rec("CP1", i, types.LevelGreen))
	}
	if st.Len() != capacity {
		t.Fatalf("Len = %d, want %d", st.Len(), capacity)
	}
	got := st.Snapshot()
	if got[0].Count != 1 {
		t.Errorf("oldest Count = %d, want 1 (record 0 evicted)", got[0].Count)
	}
	for _, r := range got {
		if r.Count == 0 {
			t.Error("record 0 still present after capacity+1 appends")
		}
	}
	if got[len(got)-1].Count != capacity {
		t.Errorf("newest Count = %d, want %d", got[len(got)-1].Count, capacity)
	}
}

func TestStore_WrapsManyTimes(t *testing.T) {
	st := New(3)
	for i := 0; i < 10; i++ {
		st.Append(rec("CP1", i, types.LevelGreen))
	}
	got := st.Snapshot()
	want := []int{7, 8, 9}
	for i, w := range want {
		if got[i].Count != w {
			t.Errorf("snapshot[%d].Count = %d, want %d", i, got[i].Count, w)
		}
	}
}

func TestStore_LatestFor(t *testing.T) {
	st := New(10)
	st.Append(rec("CP1", 1, types.LevelGreen))
	st.Append(rec("CP2", 2, types.LevelRed))
	st.Append(rec("CP1", 3, types.LevelYellow))
	st.Append(rec("CP2", 4, types.LevelGreen))

	r, ok := st.LatestFor("CP1")
	if !ok || r.Count != 3 {
		t.Errorf("LatestFor(CP1) = %+v, %v; want Count 3", r, ok)
	}
	if _, ok := st.LatestFor("CP9"); ok {
		t.Error("LatestFor(CP9) ok = true, want false")
	}
}

func TestStore_MinimumCapacity(t *testing.T) {
	st := New(0)
	if st.Cap() != 1 {
		t.Fatalf("Cap = %d, want 1", st.Cap())
	}
	st.Append(rec("CP1", 1, types.LevelGreen))
	st.Append(rec("CP1", 2, types.LevelGreen))
	if got := st.Snapshot(); len(got) != 1 || got[0].Count != 2 {
		t.Errorf("snapshot = %+v, want only record 2", got)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	st := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			st.Append(rec("CP1", n, types.LevelGreen))
		}(i)
		go func() {
			defer wg.Done()
			_ = st.Snapshot()
			_ = st.Len()
		}()
	}
	wg.Wait()
	if st.Len() != 20 {
		t.Errorf("Len = %d, want 20", st.Len())
	}
}
