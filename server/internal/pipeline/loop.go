package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/compute"
	"github.com/gateload/gateload/server/internal/source"
	"github.com/gateload/gateload/server/internal/store"
)

// Tick results passed to the OnTick hook.
const (
	ResultAppended  = "appended"
	ResultUnchanged = "unchanged"
	ResultEmpty     = "empty"
	ResultError     = "error"
)

// Source is what the loop needs from the event source.
type Source interface {
	Fingerprint() (source.Fingerprint, error)
	ReadEvents() ([]types.Event, error)
}

// Observer receives every record after it has been appended.
type Observer func(types.HistoryRecord)

// Status describes the most recent tick.
type Status struct {
	LastTick   time.Time `json:"last_tick"`
	LastResult string    `json:"last_result"`
	LastError  string    `json:"last_error,omitempty"`
	Ticks      int64     `json:"ticks"`
}

// Deps wires the loop to the shared state it updates.
type Deps struct {
	Source    Source
	Estimator *compute.Estimator
	Model     *compute.Model
	History   *store.Store

	// Location interprets zone-less timestamps. Nil means time.Local.
	Location *time.Location

	// Interval is the polling period.
	Interval time.Duration
}

// Loop is the single writer of estimator state and history.
type Loop struct {
	src      Source
	est      *compute.Estimator
	model    *compute.Model
	hist     *store.Store
	loc      *time.Location
	interval time.Duration
	now      func() time.Time // injectable for deterministic tests

	nudge chan struct{}

	mu        sync.Mutex // serialises ticks and guards the fields below
	last      source.Fingerprint
	processed bool
	status    Status
	observers []Observer
	onTick    func(result, kind string)
}

// New returns a Loop. It does nothing until Run or Tick is called.
func New(d Deps) *Loop {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		src:      d.Source,
		est:      d.Estimator,
		model:    d.Model,
		hist:     d.History,
		loc:      loc,
		interval: interval,
		now:      time.Now,
		nudge:    make(chan struct{}, 1),
	}
}

// Subscribe registers fn to receive each appended record. Observers run on
// the loop goroutine and must not block.
func (l *Loop) Subscribe(fn Observer) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// OnTick registers a hook called after every tick with its result and, for
// failed ticks, the error kind.
func (l *Loop) OnTick(fn func(result, kind string)) {
	l.mu.Lock()
	l.onTick = fn
	l.mu.Unlock()
}

// Notify asks the loop to tick as soon as possible. It never blocks; nudges
// arriving while one is pending are merged.
func (l *Loop) Notify() {
	select {
	case l.nudge <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent tick.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Run ticks immediately, then on every interval and every Notify, until ctx
// is cancelled.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("pipeline: update loop started", "interval", l.interval)
	t := time.NewTicker(l.interval)
	defer t.Stop()

	l.runTick()
	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline: update loop stopped")
			return
		case <-t.C:
			l.runTick()
		case <-l.nudge:
			l.runTick()
		}
	}
}

// runTick runs one tick and absorbs its error.
func (l *Loop) runTick() {
	rec, ok, err := l.Tick()
	switch {
	case err != nil:
		slog.Warn("pipeline: tick failed, will retry",
			"kind", ErrorKind(err), "err", err)
	case ok:
		slog.Debug("pipeline: record appended",
			"checkpoint", rec.CheckpointID, "minute", rec.Minute,
			"n_t", rec.Count, "rho", rec.Utilization, "level", rec.Level)
	}
}

// Tick performs one update cycle. It returns the appended record and true
// when the source changed and produced a bucket. A panic inside the cycle is
// recovered and returned as an error.
func (l *Loop) Tick() (rec types.HistoryRecord, appended bool, err error) {
	l.mu.Lock()
	result := ResultUnchanged
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: panic during tick: %v", r)
			appended = false
		}
		if err != nil {
			result = ResultError
		}
		kind := ErrorKind(err)
		l.status.LastTick = l.now()
		l.status.LastResult = result
		l.status.LastError = ""
		if err != nil {
			l.status.LastError = err.Error()
		}
		l.status.Ticks++
		observers := l.observers
		hook := l.onTick
		l.mu.Unlock()

		if hook != nil {
			guard("tick hook", func() { hook(result, kind) })
		}
		if appended {
			for _, fn := range observers {
				guard("observer", func() { fn(rec) })
			}
		}
	}()

	fp, err := l.src.Fingerprint()
	if err != nil {
		return rec, false, err
	}
	if l.processed && fp == l.last {
		return rec, false, nil
	}

	events, err := l.src.ReadEvents()
	if err != nil {
		return rec, false, err
	}
	bucket, ok := compute.LatestBucket(compute.AggregateMinutes(events, l.loc))
	if !ok {
		l.last, l.processed = fp, true
		result = ResultEmpty
		return rec, false, nil
	}

	rec = l.derive(bucket)
	l.hist.Append(rec)
	l.last, l.processed = fp, true
	result = ResultAppended
	return rec, true, nil
}

// guard runs fn and logs instead of propagating a panic, so a faulty
// observer cannot stop the loop or starve the observers after it.
func guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: "+what+" panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// derive runs one bucket through the estimator and the capacity model.
func (l *Loop) derive(b compute.MinuteBucket) types.HistoryRecord {
	lambda := l.est.Update(b.CheckpointID, float64(b.Count))
	mu := l.model.ServiceRate(b.CheckpointID)
	rho := lambda / mu
	return types.HistoryRecord{
		Minute:       b.Minute,
		CheckpointID: b.CheckpointID,
		Count:        b.Count,
		SmoothedRate: round4(lambda),
		ServiceRate:  round4(mu),
		Utilization:  round4(rho),
		Level:        l.model.Classify(rho),
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
