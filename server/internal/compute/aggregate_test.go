package compute

import (
	"testing"
	"time"

	"github.com/gateload/gateload/pkg/types"
)

// baseMinute is a fixed reference point so bucket timestamps are deterministic.
var baseMinute = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// at returns a raw timestamp n minutes and sec seconds after baseMinute.
func at(n, sec int) string {
	return baseMinute.Add(time.Duration(n)*time.Minute + time.Duration(sec)*time.Second).
		Format("2006-01-02 15:04:05")
}

func TestAggregateMinutes_GapFill(t *testing.T) {
	events := []types.Event{
		{RawTime: at(10, 5), CheckpointID: "CP1"},
		{RawTime: at(10, 40), CheckpointID: "CP1"},
		{RawTime: at(13, 0), CheckpointID: "CP1"},
		{RawTime: at(13, 59), CheckpointID: "CP1"},
		{RawTime: at(13, 30), CheckpointID: "CP1"},
	}
	got := AggregateMinutes(events, time.UTC)

	want := []int{2, 0, 0, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, b := range got {
		if b.Count != want[i] {
			t.Errorf("bucket %d count = %d, want %d", i, b.Count, want[i])
		}
		wantMinute := baseMinute.Add(time.Duration(10+i) * time.Minute)
		if !b.Minute.Equal(wantMinute) {
			t.Errorf("bucket %d minute = %v, want %v", i, b.Minute, wantMinute)
		}
		if b.CheckpointID != "CP1" {
			t.Errorf("bucket %d checkpoint = %q", i, b.CheckpointID)
		}
	}
}

func TestAggregateMinutes_PerCheckpointRangesAndOrder(t *testing.T) {
	events := []types.Event{
		{RawTime: at(5, 0), CheckpointID: "CP2"},
		{RawTime: at(1, 0), CheckpointID: "CP1"},
		{RawTime: at(2, 0), CheckpointID: "CP1"},
		{RawTime: at(3, 0), CheckpointID: "CP2"},
	}
	got := AggregateMinutes(events, time.UTC)

	type key struct {
		cp  string
		min int
		n   int
	}
	want := []key{
		{"CP1", 1, 1}, {"CP1", 2, 1},
		{"CP2", 3, 1}, {"CP2", 4, 0}, {"CP2", 5, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		g := got[i]
		if g.CheckpointID != w.cp || g.Count != w.n ||
			!g.Minute.Equal(baseMinute.Add(time.Duration(w.min)*time.Minute)) {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestAggregateMinutes_DropsUnparseableAndDefaultsCheckpoint(t *testing.T) {
	events := []types.Event{
		{RawTime: "not a time"},
		{RawTime: ""},
		{RawTime: at(0, 1)},
	}
	got := AggregateMinutes(events, time.UTC)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].CheckpointID != types.DefaultCheckpoint {
		t.Errorf("checkpoint = %q, want %q", got[0].CheckpointID, types.DefaultCheckpoint)
	}
	if got[0].Count != 1 {
		t.Errorf("count = %d, want 1", got[0].Count)
	}
}

func TestAggregateMinutes_Empty(t *testing.T) {
	if got := AggregateMinutes(nil, time.UTC); len(got) != 0 {
		t.Errorf("nil input: got %d rows, want 0", len(got))
	}
	onlyBad := []types.Event{{RawTime: "garbage", CheckpointID: "CP1"}}
	if got := AggregateMinutes(onlyBad, time.UTC); len(got) != 0 {
		t.Errorf("unparseable only: got %d rows, want 0", len(got))
	}
}

func TestParseTime_Layouts(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2026-03-14 09:07:30", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
		{"2026-03-14T09:07:30", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
		{"2026-03-14 09:07:30.250000", time.Date(2026, 3, 14, 9, 7, 30, 250000000, time.UTC)},
		{"2026-03-14 09:07", time.Date(2026, 3, 14, 9, 7, 0, 0, time.UTC)},
		{"14.03.2026 09:07:30", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
		{"03/14/2026 09:07:30", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
		{"2026-03-14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2026-03-14T10:07:30+01:00", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
		{"  2026-03-14 09:07:30  ", time.Date(2026, 3, 14, 9, 7, 30, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTime(tt.raw, time.UTC)
			if !ok {
				t.Fatalf("ParseTime(%q) failed", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTime_Rejects(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "2026-13-45 99:99:99", "12345"} {
		if _, ok := ParseTime(raw, time.UTC); ok {
			t.Errorf("ParseTime(%q) ok, want failure", raw)
		}
	}
}

func TestParseTime_LocalLayoutUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got, ok := ParseTime("2026-03-14 12:00:00", loc)
	if !ok {
		t.Fatal("parse failed")
	}
	if want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got.UTC(), want)
	}
}

func TestLatestBucket(t *testing.T) {
	m := func(n int) time.Time { return baseMinute.Add(time.Duration(n) * time.Minute) }
	buckets := []MinuteBucket{
		{CheckpointID: "CP1", Minute: m(4), Count: 1},
		{CheckpointID: "CP1", Minute: m(5), Count: 2},
		{CheckpointID: "CP2", Minute: m(3), Count: 3},
		{CheckpointID: "CP2", Minute: m(5), Count: 4},
	}
	got, ok := LatestBucket(buckets)
	if !ok {
		t.Fatal("ok = false")
	}
	if got.CheckpointID != "CP2" || got.Count != 4 {
		t.Errorf("latest = %+v, want CP2 count 4", got)
	}
	if _, ok := LatestBucket(nil); ok {
		t.Error("empty input: ok = true, want false")
	}
}

func TestAggregateMinutes_DSTFallBack(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 05:59Z is 01:59 EDT; 06:30Z is 01:30 EST, an hour later in absolute time.
	events := []types.Event{
		{RawTime: "2025-11-02T05:59:10Z", CheckpointID: "CP1"},
		{RawTime: "2025-11-02T06:30:20Z", CheckpointID: "CP1"},
	}
	got := AggregateMinutes(events, ny)

	first := time.Date(2025, 11, 2, 5, 59, 0, 0, time.UTC)
	last := time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC)
	if len(got) != 32 {
		t.Fatalf("len = %d, want 32 minutes from 05:59Z to 06:30Z", len(got))
	}
	if !got[0].Minute.Equal(first) || got[0].Count != 1 {
		t.Errorf("first bucket = %+v, want %v with 1", got[0], first)
	}
	if !got[31].Minute.Equal(last) || got[31].Count != 1 {
		t.Errorf("last bucket = %+v, want %v with 1", got[31], last)
	}

	b, ok := LatestBucket(got)
	if !ok || !b.Minute.Equal(last) {
		t.Errorf("LatestBucket = %v, want %v", b.Minute, last)
	}
}
