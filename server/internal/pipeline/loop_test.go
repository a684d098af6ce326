package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/compute"
	"github.com/gateload/gateload/server/internal/source"
	"github.com/gateload/gateload/server/internal/store"
)

// fakeSource is an in-memory Source whose contents tests swap between ticks.
type fakeSource struct {
	mu     sync.Mutex
	fp     source.Fingerprint
	events []types.Event
	err    error
	panics bool
	reads  int
}

func (f *fakeSource) set(size int64, events ...types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fp = source.Fingerprint{Exists: true, Size: size}
	f.events = events
}

func (f *fakeSource) Fingerprint() (source.Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fp, nil
}

func (f *fakeSource) ReadEvents() ([]types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.panics {
		panic("boom")
	}
	return f.events, f.err
}

func newLoop(src Source) (*Loop, *store.Store) {
	hist := store.New(600)
	l := New(Deps{
		Source:    src,
		Estimator: compute.NewEstimator(0.25),
		Model: compute.NewModel(compute.Params{
			ThroughputPerOfficer: 0.5, Green: 0.7, Yellow: 0.9, MinServiceRate: 0.01,
		}),
		History:  hist,
		Location: time.UTC,
		Interval: 10 * time.Millisecond,
	})
	return l, hist
}

func ev(raw, cp string) types.Event { return types.Event{RawTime: raw, CheckpointID: cp} }

func TestTick_ThreeEventsSameMinute(t *testing.T) {
	src := &fakeSource{}
	src.set(100,
		ev("2026-03-14 09:00:05", "CP1"),
		ev("2026-03-14 09:00:25", "CP1"),
		ev("2026-03-14 09:00:55", "CP1"),
	)
	l, hist := newLoop(src)

	rec, ok, err := l.Tick()
	if err != nil || !ok {
		t.Fatalf("Tick = %v, %v; want appended", ok, err)
	}
	if rec.Count != 3 || rec.SmoothedRate != 3.0 || rec.ServiceRate != 0.5 ||
		rec.Utilization != 6.0 || rec.Level != types.LevelRed {
		t.Errorf("record = %+v, want n=3 λ=3 μ=0.5 ρ=6 RED", rec)
	}
	if !rec.Minute.Equal(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("minute = %v", rec.Minute)
	}
	if hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", hist.Len())
	}
}

func TestTick_UnchangedFingerprintSkips(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:05", "CP1"))
	l, hist := newLoop(src)

	l.Tick()
	_, ok, err := l.Tick()
	if ok || err != nil {
		t.Fatalf("second Tick = %v, %v; want no-op", ok, err)
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1", src.reads)
	}
	if hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", hist.Len())
	}
	if got := l.Status().LastResult; got != ResultUnchanged {
		t.Errorf("LastResult = %q, want %q", got, ResultUnchanged)
	}
}

func TestTick_EmptySourceAppendsNothing(t *testing.T) {
	src := &fakeSource{}
	src.set(0)
	l, hist := newLoop(src)

	if _, ok, err := l.Tick(); ok || err != nil {
		t.Fatalf("Tick = %v, %v", ok, err)
	}
	if hist.Len() != 0 {
		t.Errorf("history len = %d, want 0", hist.Len())
	}
	if got := l.Status().LastResult; got != ResultEmpty {
		t.Errorf("LastResult = %q, want %q", got, ResultEmpty)
	}

	// Only unparseable rows: still nothing.
	src.set(20, ev("garbage", "CP1"))
	if _, ok, _ := l.Tick(); ok {
		t.Error("unparseable rows produced a record")
	}
}

func TestTick_PicksChronologicallyLastBucket(t *testing.T) {
	src := &fakeSource{}
	src.set(10,
		ev("2026-03-14 09:05:00", "CP1"),
		ev("2026-03-14 09:07:00", "CP2"),
		ev("2026-03-14 09:07:10", "CP2"),
		ev("2026-03-14 09:06:00", "CP3"),
	)
	l, _ := newLoop(src)
	rec, ok, _ := l.Tick()
	if !ok || rec.CheckpointID != "CP2" || rec.Count != 2 {
		t.Errorf("record = %+v, want CP2 count 2", rec)
	}
}

func TestTick_EWMAAcrossTicks(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:00", "CP1"), ev("2026-03-14 09:00:01", "CP1"),
		ev("2026-03-14 09:00:02", "CP1"), ev("2026-03-14 09:00:03", "CP1"))
	l, _ := newLoop(src)
	l.Tick() // λ = 4

	src.set(20, ev("2026-03-14 09:00:00", "CP1"), ev("2026-03-14 09:01:00", "CP1"))
	rec, _, _ := l.Tick() // 0.25*1 + 0.75*4 = 3.25
	if rec.SmoothedRate != 3.25 {
		t.Errorf("λ = %v, want 3.25", rec.SmoothedRate)
	}
}

func TestTick_ErrorRetriesAndLeavesStateAlone(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:00", "CP1"))
	src.err = fmt.Errorf("read: %w", source.ErrMissingTimestampColumn)
	l, hist := newLoop(src)

	var kinds []string
	l.OnTick(func(result, kind string) { kinds = append(kinds, result+"/"+kind) })

	_, ok, err := l.Tick()
	if ok || err == nil {
		t.Fatalf("Tick = %v, %v; want error", ok, err)
	}
	if hist.Len() != 0 {
		t.Errorf("history len = %d after failed tick", hist.Len())
	}
	if st := l.Status(); st.LastResult != ResultError || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}

	// Same fingerprint, error cleared: the next tick must retry.
	src.err = nil
	if _, ok, err := l.Tick(); !ok || err != nil {
		t.Fatalf("retry Tick = %v, %v; want appended", ok, err)
	}
	want := []string{"error/schema", "appended/"}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("hook calls = %v, want %v", kinds, want)
	}
}

func TestTick_RecoversPanic(t *testing.T) {
	src := &fakeSource{panics: true}
	src.set(10)
	l, _ := newLoop(src)

	_, ok, err := l.Tick()
	if ok || err == nil {
		t.Fatalf("Tick = %v, %v; want recovered error", ok, err)
	}
	if ErrorKind(err) != KindUnknown {
		t.Errorf("kind = %q, want unknown", ErrorKind(err))
	}
	// Lock released after the panic.
	_ = l.Status()
}

func TestTick_ObserversReceiveRecords(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:00", "CP1"))
	l, _ := newLoop(src)

	var got []types.HistoryRecord
	l.Subscribe(func(r types.HistoryRecord) { got = append(got, r) })
	l.Tick()
	l.Tick()
	if len(got) != 1 || got[0].Count != 1 {
		t.Errorf("observed = %+v, want one record", got)
	}
}

func TestTick_PanickingObserverDoesNotStopOthers(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:00", "CP1"))
	l, hist := newLoop(src)

	var got []types.HistoryRecord
	l.OnTick(func(string, string) { panic("hook failed") })
	l.Subscribe(func(types.HistoryRecord) { panic("observer failed") })
	l.Subscribe(func(r types.HistoryRecord) { got = append(got, r) })

	rec, ok, err := l.Tick()
	if !ok || err != nil {
		t.Fatalf("Tick = %v, %v; want appended without error", ok, err)
	}
	if len(got) != 1 || got[0] != rec {
		t.Errorf("later observer saw %+v, want %+v", got, rec)
	}
	if hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", hist.Len())
	}

	// The loop keeps ticking afterwards.
	src.set(20, ev("2026-03-14 09:00:00", "CP1"), ev("2026-03-14 09:01:00", "CP1"))
	if _, ok, err := l.Tick(); !ok || err != nil {
		t.Errorf("second Tick = %v, %v", ok, err)
	}
	if st := l.Status(); st.Ticks != 2 || st.LastResult != ResultAppended {
		t.Errorf("status = %+v", st)
	}
}

func TestTick_OfficerChangeAppliesOnNextTick(t *testing.T) {
	src := &fakeSource{}
	src.set(10, ev("2026-03-14 09:00:00", "CP1"))
	l, _ := newLoop(src)
	l.Tick()

	l.model.SetOfficers("CP1", 4)
	src.set(20, ev("2026-03-14 09:00:00", "CP1"), ev("2026-03-14 09:01:00", "CP1"))
	rec, _, _ := l.Tick()
	if rec.ServiceRate != 2.0 {
		t.Errorf("μ = %v, want 2.0", rec.ServiceRate)
	}
	if rec.Level != types.LevelGreen {
		t.Errorf("level = %s, want GREEN (ρ=0.5)", rec.Level)
	}
}

func TestRun_NotifyAndCancel(t *testing.T) {
	src := &fakeSource{}
	l, _ := newLoop(src)
	l.interval = time.Hour

	got := make(chan types.HistoryRecord, 4)
	l.Subscribe(func(r types.HistoryRecord) { got <- r })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	src.set(10, ev("2026-03-14 09:00:00", "CP1"))
	deadline := time.After(5 * time.Second)
	for {
		l.Notify()
		select {
		case <-got:
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("no record after Notify")
		}
	}
}

func TestRun_AgainstCSVFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "flight_data.csv")
	src := source.NewCSV(p, source.Options{TimestampColumns: []string{"CheckDate"}})
	l, hist := newLoop(src)

	// Missing file: nothing happens, no error.
	if _, ok, err := l.Tick(); ok || err != nil {
		t.Fatalf("missing file Tick = %v, %v", ok, err)
	}
	content := "CheckDate,checkpoint_id\n2026-03-14 09:00:01,CP1\n2026-03-14 09:00:02,CP1\n"
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := l.Tick()
	if err != nil || !ok || rec.Count != 2 {
		t.Fatalf("Tick = %+v, %v, %v", rec, ok, err)
	}
	if hist.Len() != 1 {
		t.Errorf("history len = %d", hist.Len())
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", source.ErrMissingTimestampColumn), KindSchema},
		{fmt.Errorf("x: %w", &csv.ParseError{Line: 3, Err: csv.ErrQuote}), KindParse},
		{fmt.Errorf("x: %w", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}), KindIO},
		{errors.New("mystery"), KindUnknown},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
