package query

import (
	"errors"
	"math"
	"time"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/compute"
	"github.com/gateload/gateload/server/internal/source"
	"github.com/gateload/gateload/server/internal/store"
)

// Default windows, in minutes or rows.
const (
	DefaultSummaryMinutes = 15
	DefaultLatestMinutes  = 60
	DefaultMetricsMinutes = 60
	DefaultCSVLimit       = 50
	DefaultAnalysisWindow = 60
	TopDestinations       = 10
)

// MaxWindowMinutes bounds every minute-based request to one week.
const MaxWindowMinutes = 7 * 24 * 60

// MaxCSVLimit bounds the raw row preview.
const MaxCSVLimit = 1000

// Source is the raw event file as seen by queries.
type Source interface {
	ReadEvents() ([]types.Event, error)
	Tail(limit int) (source.Table, error)
	Destinations(top int) (source.DestinationStats, error)
}

// Deps wires a Service to shared state.
type Deps struct {
	History   *store.Store
	Model     *compute.Model
	Estimator *compute.Estimator
	Source    Source

	// Location interprets zone-less timestamps. Nil means time.Local.
	Location *time.Location

	// AnalysisWindow bounds the streak and color reports. Zero means 60.
	AnalysisWindow int

	// DefaultCheckpoint is used when a request names none.
	DefaultCheckpoint string
}

// Service answers dashboard queries. It is safe for concurrent use.
type Service struct {
	hist      *store.Store
	model     *compute.Model
	est       *compute.Estimator
	src       Source
	loc       *time.Location
	window    int
	defaultCP string
	now       func() time.Time // injectable for deterministic tests
}

// New returns a Service.
func New(d Deps) *Service {
	s := &Service{
		hist:      d.History,
		model:     d.Model,
		est:       d.Estimator,
		src:       d.Source,
		loc:       d.Location,
		window:    d.AnalysisWindow,
		defaultCP: d.DefaultCheckpoint,
		now:       time.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.window <= 0 {
		s.window = DefaultAnalysisWindow
	}
	if s.defaultCP == "" {
		s.defaultCP = types.DefaultCheckpoint
	}
	return s
}

// SetClock replaces the wall clock used for window boundaries.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Latest returns the deduplicated last n records.
func (s *Service) Latest(n int) []types.HistoryRecord {
	return store.Last(store.Dedupe(s.hist.Snapshot()), n)
}

// ModelInfo reports the estimator and capacity parameters in effect.
type ModelInfo struct {
	Alpha                float64 `json:"alpha"`
	ThroughputPerOfficer float64 `json:"throughput_per_officer"`
	GreenThreshold       float64 `json:"green_threshold"`
	YellowThreshold      float64 `json:"yellow_threshold"`
	AnalysisWindow       int     `json:"analysis_window"`
}

// ModelInfo returns the parameters records are derived with.
func (s *Service) ModelInfo() ModelInfo {
	green, yellow := s.model.Thresholds()
	info := ModelInfo{
		ThroughputPerOfficer: s.model.Throughput(),
		GreenThreshold:       green,
		YellowThreshold:      yellow,
		AnalysisWindow:       s.window,
	}
	if s.est != nil {
		info.Alpha = s.est.Alpha()
	}
	return info
}

// CapacityAck confirms an officer-count change.
type CapacityAck struct {
	OK                   bool    `json:"ok"`
	CheckpointID         string  `json:"checkpoint_id"`
	Officers             int     `json:"officers"`
	ThroughputPerOfficer float64 `json:"throughput_per_officer"`
}

// SetCapacity sets the officer count of cp (the default checkpoint when
// empty). Counts below 1 are stored as 1. The change applies from the next
// update tick.
func (s *Service) SetCapacity(cp string, officers int) CapacityAck {
	if cp == "" {
		cp = s.defaultCP
	}
	n := s.model.SetOfficers(cp, officers)
	return CapacityAck{
		OK:                   true,
		CheckpointID:         cp,
		Officers:             n,
		ThroughputPerOfficer: s.model.Throughput(),
	}
}

// ColorReport is the level tally over the analysis window.
type ColorReport struct {
	store.Durations
	Window int `json:"window"`
}

// ColorDurations counts minutes per level over the analysis window.
func (s *Service) ColorDurations() ColorReport {
	view := store.Last(store.Dedupe(s.hist.Snapshot()), s.window)
	return ColorReport{Durations: store.ColorDurations(view), Window: s.window}
}

// WarningReport is the RED streak analysis over the analysis window.
type WarningReport struct {
	store.StreakReport
	Window int `json:"window"`
}

// WarningDurations reports RED streaks per checkpoint over the analysis window.
func (s *Service) WarningDurations() WarningReport {
	view := store.Last(store.Dedupe(s.hist.Snapshot()), s.window)
	return WarningReport{StreakReport: store.RedStreaks(view), Window: s.window}
}

// Utilization is the latest load state of one checkpoint.
type Utilization struct {
	CheckpointID string      `json:"checkpoint_id"`
	Utilization  float64     `json:"rho"`
	SmoothedRate float64     `json:"lambda_hat"`
	ServiceRate  float64     `json:"mu"`
	Level        types.Level `json:"level,omitempty"`
	Minute       *time.Time  `json:"ts_minute,omitempty"`
}

// CurrentUtilization returns the most recently appended record of cp (the
// default checkpoint when empty), rounded to three decimals. All values are
// zero when the checkpoint has no record yet.
func (s *Service) CurrentUtilization(cp string) Utilization {
	if cp == "" {
		cp = s.defaultCP
	}
	out := Utilization{CheckpointID: cp}
	rec, ok := s.hist.LatestFor(cp)
	if !ok {
		return out
	}
	m := rec.Minute
	out.Utilization = round(rec.Utilization, 3)
	out.SmoothedRate = round(rec.SmoothedRate, 3)
	out.ServiceRate = round(rec.ServiceRate, 3)
	out.Level = rec.Level
	out.Minute = &m
	return out
}

// CSVPreview is the newest rows of the source file.
type CSVPreview struct {
	source.Table
	Error string `json:"error,omitempty"`
}

// CSVTail returns the last limit rows of the source, newest first. Read
// errors are reported in the Error field next to an empty table.
func (s *Service) CSVTail(limit int) CSVPreview {
	t, err := s.src.Tail(limit)
	if err != nil {
		return CSVPreview{
			Table: source.Table{Columns: []string{}, Rows: []map[string]any{}},
			Error: err.Error(),
		}
	}
	return CSVPreview{Table: t}
}

// DestinationReport ranks destination airports.
type DestinationReport struct {
	source.DestinationStats
	Error string `json:"error,omitempty"`
}

// Destinations returns the top destination airports by share of rows.
func (s *Service) Destinations() DestinationReport {
	st, err := s.src.Destinations(TopDestinations)
	if err != nil {
		return DestinationReport{
			DestinationStats: source.DestinationStats{Destinations: []source.Destination{}},
			Error:            err.Error(),
		}
	}
	return DestinationReport{DestinationStats: st}
}

// Dashboard bundles the views the live feed pushes on every broadcast.
type Dashboard struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Latest      []types.HistoryRecord `json:"latest"`
	Summary     []SummaryItem         `json:"summary"`
	Colors      ColorReport           `json:"color_durations"`
	Warnings    WarningReport         `json:"warning_durations"`
}

// Dashboard assembles the live feed payload from a single history snapshot.
func (s *Service) Dashboard() Dashboard {
	view := store.Dedupe(s.hist.Snapshot())
	window := store.Last(view, s.window)
	return Dashboard{
		GeneratedAt: s.now().UTC(),
		Latest:      store.Last(view, DefaultLatestMinutes),
		Summary:     s.summarize(store.Last(view, DefaultSummaryMinutes)),
		Colors:      ColorReport{Durations: store.ColorDurations(window), Window: s.window},
		Warnings:    WarningReport{StreakReport: store.RedStreaks(window), Window: s.window},
	}
}

// IsClientError reports whether err stems from the shape of the source
// rather than from a transient failure.
func IsClientError(err error) bool {
	return errors.Is(err, source.ErrMissingTimestampColumn)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
