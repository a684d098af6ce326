package store

import (
	"sort"

	"github.com/gateload/gateload/pkg/types"
)

// Dedupe collapses records sharing a (minute, checkpoint) key to the one
// appended last, then sorts by checkpoint and minute. records must be in
// insertion order, as returned by Store.Snapshot.
func Dedupe(records []types.HistoryRecord) []types.HistoryRecord {
	type key struct {
		cp     string
		minute int64
	}
	idx := make(map[key]int, len(records))
	out := make([]types.HistoryRecord, 0, len(records))
	for _, r := range records {
		k := key{r.CheckpointID, r.Minute.UnixNano()}
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CheckpointID != out[j].CheckpointID {
			return out[i].CheckpointID < out[j].CheckpointID
		}
		return out[i].Minute.Before(out[j].Minute)
	})
	return out
}

// Last returns the tail n entries of view. It never pads: a shorter view is
// returned whole, and n <= 0 yields an empty slice.
func Last(view []types.HistoryRecord, n int) []types.HistoryRecord {
	if n <= 0 {
		return []types.HistoryRecord{}
	}
	if n >= len(view) {
		return view
	}
	return view[len(view)-n:]
}

// Streak summarises the RED minutes of one checkpoint.
type Streak struct {
	CheckpointID    string `json:"checkpoint"`
	MaxStreak       int    `json:"max_streak"`
	CurrentStreak   int    `json:"current_streak"`
	TotalRedMinutes int    `json:"total_red_minutes"`
}

// StreakReport is the RED streak analysis of a view.
type StreakReport struct {
	Checkpoints  []Streak `json:"durations"`
	MaxRedStreak int      `json:"max_red_streak"`
}

// RedStreaks scans view chronologically per checkpoint and counts consecutive
// RED minutes. Checkpoints without any RED minute are left out. view is
// expected to be deduplicated.
func RedStreaks(view []types.HistoryRecord) StreakReport {
	byCP := make(map[string][]types.HistoryRecord)
	for _, r := range view {
		byCP[r.CheckpointID] = append(byCP[r.CheckpointID], r)
	}
	cps := make([]string, 0, len(byCP))
	for cp := range byCP {
		cps = append(cps, cp)
	}
	sort.Strings(cps)

	rep := StreakReport{Checkpoints: []Streak{}}
	for _, cp := range cps {
		recs := byCP[cp]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Minute.Before(recs[j].Minute) })

		st := Streak{CheckpointID: cp}
		run := 0
		for _, r := range recs {
			if r.Level != types.LevelRed {
				run = 0
				continue
			}
			run++
			st.TotalRedMinutes++
			if run > st.MaxStreak {
				st.MaxStreak = run
			}
		}
		st.CurrentStreak = run
		if st.TotalRedMinutes == 0 {
			continue
		}
		rep.Checkpoints = append(rep.Checkpoints, st)
		if st.MaxStreak > rep.MaxRedStreak {
			rep.MaxRedStreak = st.MaxStreak
		}
	}
	return rep
}

// Durations is the per-level minute tally of a view.
type Durations struct {
	Colors       map[types.Level]int `json:"colors"`
	TotalMinutes int                 `json:"total_minutes"`
}

// ColorDurations counts how many minutes of view fall into each level. Every
// level is present in the result, zero when absent.
func ColorDurations(view []types.HistoryRecord) Durations {
	d := Durations{Colors: make(map[types.Level]int, len(types.Levels))}
	for _, l := range types.Levels {
		d.Colors[l] = 0
	}
	for _, r := range view {
		d.Colors[r.Level]++
	}
	d.TotalMinutes = len(view)
	return d
}
