package synth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gateload/gateload/pkg/types"
)

// CheckDateLayout is the timestamp format written to the CheckDate column.
const CheckDateLayout = "2006-01-02 15:04:05"

var (
	pnrs         = []string{"E3*****", "ET*****", "PM*****", "EY*****", "EW*****", "EV*****"}
	origins      = []string{"DLM"}
	destinations = []string{"AMS", "FRA", "MUC", "ZRH", "VIE", "PRG", "BUD", "ATH", "LIS", "GYD", "SAW", "IST", "ESB"}
	carriers     = []string{"TK", "PC", "VF", "J2", "HV", "ZF"}
	flights      = []string{"2555", "3121", "404", "062", "4071", "2285"}
	errReasons   = []string{"Ticket date mismatch", "Invalid PNR", "Flight not found", "Ticket already used"}
	passTypes    = []string{"DD", "DI"}
)

// Probability returns the chance that a step at the given hour emits a row.
// Hour 19 is deliberately quiet.
func Probability(hour int) float64 {
	switch {
	case hour >= 8 && hour < 12:
		return 0.90
	case hour >= 12 && hour < 19:
		return 0.60
	case hour >= 20 && hour < 23:
		return 0.90
	case hour >= 23 || hour < 4:
		return 0.10
	case hour >= 4 && hour < 8:
		return 0.30
	default:
		return 0.10
	}
}

// Options configures a Generator.
type Options struct {
	// Checkpoints rows are spread over. Empty means the default checkpoint.
	Checkpoints []string

	// Probability overrides the hour profile when in (0, 1].
	Probability float64

	// Interval fixes the wait between steps. Zero uses the bursty default
	// of 1-4s most of the time and 5-20s otherwise.
	Interval time.Duration

	// Seed seeds the random source. Zero seeds from the clock.
	Seed int64
}

// Generator emits synthetic passage rows. It is not safe for concurrent use.
type Generator struct {
	opts Options
	rng  *rand.Rand
	now  func() time.Time // injectable for deterministic tests
}

// New returns a Generator.
func New(opts Options) *Generator {
	if len(opts.Checkpoints) == 0 {
		opts.Checkpoints = []string{types.DefaultCheckpoint}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)), //nolint:gosec // synthetic data
		now:  time.Now,
	}
}

// Row builds one passage row in types.PassageColumns order.
func (g *Generator) Row() []string {
	now := g.now()
	success, reason := "1", ""
	if g.rng.Float64() >= 0.9 {
		success, reason = "0", g.pick(errReasons)
	}
	return []string{
		strconv.Itoa(1400000 + g.rng.Intn(100001)),
		fmt.Sprintf("%c*** %c***", 'A'+g.rng.Intn(26), 'A'+g.rng.Intn(26)),
		g.pick(pnrs),
		g.pick(origins),
		g.pick(destinations),
		g.pick(carriers),
		g.pick(flights),
		fmt.Sprintf("%03d", now.YearDay()),
		now.Format(CheckDateLayout),
		success,
		reason,
		g.pick(passTypes),
		g.pick(g.opts.Checkpoints),
	}
}

// Step emits a row with the current hour's probability. It returns nil and
// false when the step stays quiet.
func (g *Generator) Step() ([]string, bool) {
	p := g.opts.Probability
	if p <= 0 || p > 1 {
		p = Probability(g.now().Hour())
	}
	if g.rng.Float64() > p {
		return nil, false
	}
	return g.Row(), true
}

// Wait returns the pause before the next step.
func (g *Generator) Wait() time.Duration {
	if g.opts.Interval > 0 {
		return g.opts.Interval
	}
	if g.rng.Float64() < 0.7 {
		return time.Duration(1+g.rng.Intn(4)) * time.Second
	}
	return time.Duration(5+g.rng.Intn(16)) * time.Second
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

// Run steps g until ctx is cancelled, appending emitted rows to w. Append
// failures are logged and the loop continues.
func Run(ctx context.Context, g *Generator, w *Appender) {
	runID := uuid.NewString()
	slog.Info("synth: generator started", "run_id", runID, "path", w.Path(), "checkpoints", g.opts.Checkpoints)
	var written int
	for {
		if row, ok := g.Step(); ok {
			if err := w.Append(row); err != nil {
				slog.Error("synth: append failed", "path", w.Path(), "err", err)
			} else {
				written++
				slog.Info("synth: row written",
					"run_id", runID, "checkpoint", row[len(row)-1],
					"check_date", row[8], "total", written)
			}
		} else {
			slog.Debug("synth: low traffic, no row", "hour", g.now().Hour())
		}

		select {
		case <-ctx.Done():
			slog.Info("synth: generator stopped", "run_id", runID, "rows", written)
			return
		case <-time.After(g.Wait()):
		}
	}
}
