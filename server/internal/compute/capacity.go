package compute

import (
	"math"
	"sync"

	"github.com/gateload/gateload/pkg/types"
)

// Params configures a capacity Model.
type Params struct {
	// ThroughputPerOfficer is passengers per minute one officer can serve.
	ThroughputPerOfficer float64

	// Green and Yellow are ascending utilization thresholds.
	Green  float64
	Yellow float64

	// MinServiceRate floors ServiceRate so utilization stays finite.
	MinServiceRate float64

	// Officers seeds per-checkpoint officer counts. Values below 1 are clamped.
	Officers map[string]int
}

// Model maps officer counts to service rates and classifies utilization.
//
// All exported methods are safe for concurrent use.
type Model struct {
	throughput float64
	green      float64
	yellow     float64
	minRate    float64

	mu       sync.Mutex
	officers map[string]int
}

// NewModel returns a Model built from p.
func NewModel(p Params) *Model {
	m := &Model{
		throughput: p.ThroughputPerOfficer,
		green:      p.Green,
		yellow:     p.Yellow,
		minRate:    p.MinServiceRate,
		officers:   make(map[string]int, len(p.Officers)),
	}
	for cp, n := range p.Officers {
		m.officers[cp] = clampOfficers(n)
	}
	return m
}

// Throughput returns the per-officer throughput.
func (m *Model) Throughput() float64 { return m.throughput }

// Thresholds returns the green and yellow utilization thresholds.
func (m *Model) Thresholds() (green, yellow float64) { return m.green, m.yellow }

// Officers returns the officer count for cp, 1 when never set.
func (m *Model) Officers(cp string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.officersLocked(cp)
}

func (m *Model) officersLocked(cp string) int {
	if n, ok := m.officers[cp]; ok {
		return n
	}
	return 1
}

// SetOfficers stores the officer count for cp, clamping values below 1, and
// returns the stored value. It takes effect on the next service rate read.
func (m *Model) SetOfficers(cp string, n int) int {
	n = clampOfficers(n)
	m.mu.Lock()
	m.officers[cp] = n
	m.mu.Unlock()
	return n
}

// ServiceRate returns officers(cp) × throughput, floored at MinServiceRate.
func (m *Model) ServiceRate(cp string) float64 {
	m.mu.Lock()
	n := m.officersLocked(cp)
	m.mu.Unlock()
	return math.Max(m.minRate, float64(n)*m.throughput)
}

// Utilization returns rate divided by the checkpoint's service rate.
func (m *Model) Utilization(cp string, rate float64) float64 {
	return rate / m.ServiceRate(cp)
}

// Classify maps a utilization ratio to a level using the model's thresholds.
func (m *Model) Classify(u float64) types.Level {
	return Classify(u, m.green, m.yellow)
}

// RecommendedOfficers returns the smallest officer count that brings the
// utilization of rate under the green threshold. current is returned when the
// model cannot size staffing.
func (m *Model) RecommendedOfficers(rate float64, current int) int {
	per := m.green * m.throughput
	if per <= 0 {
		return current
	}
	return int(math.Ceil(rate / per))
}

// Classify maps u to GREEN below green, YELLOW below yellow, RED otherwise.
func Classify(u, green, yellow float64) types.Level {
	switch {
	case u < green:
		return types.LevelGreen
	case u < yellow:
		return types.LevelYellow
	default:
		return types.LevelRed
	}
}

func clampOfficers(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
