package query

import (
	"fmt"

	"github.com/gateload/gateload/pkg/types"
)

// SummaryItem is one history record explained in plain language. The
// dashboard shows Headline on the card and Detail and Advice underneath.
type SummaryItem struct {
	CheckpointID string      `json:"checkpoint_id"`
	Time         string      `json:"time"`
	Level        types.Level `json:"level"`
	Icon         string      `json:"emoji"`
	Utilization  float64     `json:"rho"`
	Headline     string      `json:"headline"`
	Detail       string      `json:"detail"`
	Advice       string      `json:"advice"`

	// Officers is the staffing at render time; Recommended is only set for
	// RED records.
	Officers    int `json:"officers"`
	Recommended int `json:"recommended_officers,omitempty"`
}

// Summary explains the deduplicated last n records.
func (s *Service) Summary(n int) []SummaryItem {
	return s.summarize(s.Latest(n))
}

func (s *Service) summarize(recs []types.HistoryRecord) []SummaryItem {
	out := make([]SummaryItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.explain(r))
	}
	return out
}

// explain renders one record. Officer counts are read live, so advice reflects
// staffing changes made after the record was computed.
func (s *Service) explain(r types.HistoryRecord) SummaryItem {
	ts := r.Minute.In(s.loc).Format("2006-01-02 15:04")
	officers := s.model.Officers(r.CheckpointID)

	item := SummaryItem{
		CheckpointID: r.CheckpointID,
		Time:         ts,
		Level:        r.Level,
		Icon:         r.Level.Icon(),
		Utilization:  round(r.Utilization, 2),
		Officers:     officers,
		Headline:     fmt.Sprintf("%s - %s - %s %s", ts, r.CheckpointID, r.Level.Icon(), r.Level),
		Detail: fmt.Sprintf(
			"%d passengers in the last minute. "+
				"Estimated rate ≈ %.1f per min. "+
				"Capacity ≈ %.2f per min (officers: %d). "+
				"Load ≈ %.2f×.",
			r.Count, r.SmoothedRate, r.ServiceRate, officers, r.Utilization,
		),
	}

	switch r.Level {
	case types.LevelRed:
		need := s.model.RecommendedOfficers(r.SmoothedRate, officers)
		item.Recommended = need
		item.Advice = fmt.Sprintf("Advice: raise staffing to at least %d officers (≈ +%d).",
			need, max(0, need-officers))
	case types.LevelYellow:
		item.Advice = "Advice: be ready to add one officer if the rise continues."
	default:
		item.Advice = "Advice: flow is normal, keep monitoring."
	}
	return item
}
