package query

import (
	"sort"
	"time"

	"github.com/gateload/gateload/server/internal/compute"
)

// MinuteCount is the total passages of all checkpoints in one minute.
type MinuteCount struct {
	Minute time.Time `json:"ts"`
	Count  int       `json:"count"`
}

// KPIs summarise a MetricsWindow series.
type KPIs struct {
	Total           int        `json:"total"`
	AvgPerMin       float64    `json:"avg_per_min"`
	PeakCount       int        `json:"peak_count"`
	PeakMinute      *time.Time `json:"peak_ts"`
	CheckpointCount int        `json:"cp_count"`
}

// MetricsWindow is the full-resolution passage series ending at the current
// minute.
type MetricsWindow struct {
	Series []MinuteCount `json:"series"`
	KPIs   KPIs          `json:"kpis"`
	Error  string        `json:"error,omitempty"`
}

// MetricsWindow recounts the source minute by minute over the last minutes
// minutes, current minute included, summed across checkpoints. It does not
// use the history store. minutes is capped at MaxWindowMinutes.
//
// A missing or empty source yields an all-zero series. A source without a
// timestamp column returns the error; any other read error is reported in
// the Error field next to an all-zero series.
func (s *Service) MetricsWindow(minutes int) (MetricsWindow, error) {
	if minutes <= 0 {
		return MetricsWindow{Series: []MinuteCount{}}, nil
	}
	if minutes > MaxWindowMinutes {
		minutes = MaxWindowMinutes
	}
	end := compute.TruncateMinute(s.now().In(s.loc))
	start := end.Add(-time.Duration(minutes-1) * time.Minute)
	out := MetricsWindow{Series: zeroSeries(start, minutes)}

	events, err := s.src.ReadEvents()
	if err != nil {
		if IsClientError(err) {
			return MetricsWindow{}, err
		}
		out.Error = err.Error()
		return out, nil
	}

	cps := make(map[string]struct{})
	for _, b := range compute.AggregateMinutes(events, s.loc) {
		if b.Minute.Before(start) || b.Minute.After(end) {
			continue
		}
		cps[b.CheckpointID] = struct{}{}
		i := int(b.Minute.Sub(start) / time.Minute)
		out.Series[i].Count += b.Count
	}

	out.KPIs = kpis(out.Series, len(cps))
	return out, nil
}

func zeroSeries(start time.Time, minutes int) []MinuteCount {
	series := make([]MinuteCount, minutes)
	for i := range series {
		series[i].Minute = start.Add(time.Duration(i) * time.Minute)
	}
	return series
}

// kpis computes the totals of series. The peak minute is the earliest minute
// holding the peak count and stays nil when the peak is zero.
func kpis(series []MinuteCount, checkpoints int) KPIs {
	k := KPIs{CheckpointCount: checkpoints}
	if len(series) == 0 {
		return k
	}
	peak := -1
	for i, c := range series {
		k.Total += c.Count
		if peak < 0 || c.Count > series[peak].Count {
			peak = i
		}
	}
	k.AvgPerMin = round(float64(k.Total)/float64(len(series)), 2)
	k.PeakCount = series[peak].Count
	if k.PeakCount > 0 {
		m := series[peak].Minute
		k.PeakMinute = &m
	}
	return k
}

// CheckpointIDs lists the checkpoints present in the history, sorted.
func (s *Service) CheckpointIDs() []string {
	seen := make(map[string]struct{})
	for _, r := range s.hist.Snapshot() {
		seen[r.CheckpointID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for cp := range seen {
		out = append(out, cp)
	}
	sort.Strings(out)
	return out
}
