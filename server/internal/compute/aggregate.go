package compute

import (
	"sort"
	"time"

	"github.com/gateload/gateload/pkg/types"
)

// MinuteBucket is the number of passages one checkpoint saw in one minute.
type MinuteBucket struct {
	CheckpointID string    `json:"checkpoint_id"`
	Minute       time.Time `json:"ts_minute"`
	Count        int       `json:"n_t"`
}

// AggregateMinutes groups events into per-checkpoint minute buckets.
//
// Events whose timestamp does not parse are dropped. For each checkpoint every
// minute between its first and last observed minute is present, with a zero
// count where nothing happened. The result is sorted by (checkpoint, minute).
// Events without a checkpoint id count toward types.DefaultCheckpoint.
func AggregateMinutes(events []types.Event, loc *time.Location) []MinuteBucket {
	counts := make(map[string]map[int64]int)
	for _, ev := range events {
		t, ok := ParseTime(ev.RawTime, loc)
		if !ok {
			continue
		}
		cp := ev.CheckpointID
		if cp == "" {
			cp = types.DefaultCheckpoint
		}
		m, ok := counts[cp]
		if !ok {
			m = make(map[int64]int)
			counts[cp] = m
		}
		m[TruncateMinute(t).Unix()]++
	}

	cps := make([]string, 0, len(counts))
	for cp := range counts {
		cps = append(cps, cp)
	}
	sort.Strings(cps)

	if loc == nil {
		loc = time.Local
	}

	var out []MinuteBucket
	for _, cp := range cps {
		out = append(out, fillRange(cp, counts[cp], loc)...)
	}
	return out
}

// fillRange expands one checkpoint's sparse minute counts into a dense series.
func fillRange(cp string, m map[int64]int, loc *time.Location) []MinuteBucket {
	var first, last int64
	seen := false
	for k := range m {
		if !seen || k < first {
			first = k
		}
		if !seen || k > last {
			last = k
		}
		seen = true
	}
	out := make([]MinuteBucket, 0, (last-first)/60+1)
	for k := first; k <= last; k += 60 {
		out = append(out, MinuteBucket{
			CheckpointID: cp,
			Minute:       time.Unix(k, 0).In(loc),
			Count:        m[k],
		})
	}
	return out
}

// LatestBucket returns the chronologically last bucket: the greatest minute,
// ties broken by the greatest checkpoint id. ok is false for empty input.
func LatestBucket(buckets []MinuteBucket) (MinuteBucket, bool) {
	if len(buckets) == 0 {
		return MinuteBucket{}, false
	}
	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.Minute.After(best.Minute) ||
			(b.Minute.Equal(best.Minute) && b.CheckpointID > best.CheckpointID) {
			best = b
		}
	}
	return best, true
}
