package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID           string      `json:"id"`
	RuleName     string      `json:"rule_name"`
	CheckpointID string      `json:"checkpoint_id"`
	Severity     string      `json:"severity"`
	Message      string      `json:"message"`
	Value        float64     `json:"value"`
	Level        types.Level `json:"level"`
	Utilization  float64     `json:"rho"`
	Minute       time.Time   `json:"ts_minute"`
	FiredAt      time.Time   `json:"fired_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
	State        string      `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against appended history records and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests

	// deliverFn sends one alert to every webhook. Tests replace it to observe
	// deliveries synchronously.
	deliverFn func(*Alert)

	mu         sync.Mutex
	active     map[string]*Alert    // key: "ruleName:checkpoint"
	lastFire   map[string]time.Time // last fire time per key (for cooldown)
	history    []*Alert             // recently resolved alerts
	redRun     map[string]int       // consecutive RED minutes per checkpoint
	lastMinute map[string]time.Time // minute of the last record per checkpoint
}

// New creates an Engine from the alert configuration.
// An Engine with empty rules is valid; Evaluate only tracks streaks.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:      cfg.Rules,
		webhooks:   cfg.Webhooks,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		active:     make(map[string]*Alert),
		lastFire:   make(map[string]time.Time),
		redRun:     make(map[string]int),
		lastMinute: make(map[string]time.Time),
	}
	e.deliverFn = func(a *Alert) { go e.deliver(a) }
	return e
}

// Evaluate tests all configured rules against rec.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(rec types.HistoryRecord) {
	cp := rec.CheckpointID

	e.mu.Lock()
	streak := e.trackStreak(rec)
	e.mu.Unlock()

	if len(e.rules) == 0 {
		return
	}

	f := facts{rec: rec, redStreak: streak}
	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name + ":" + cp
		fires, value := evalCondition(rule.Condition, f)

		e.mu.Lock()
		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
				e.mu.Unlock()
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:           uuid.New().String(),
				RuleName:     rule.Name,
				CheckpointID: cp,
				Severity:     sev,
				Value:        value,
				Level:        rec.Level,
				Utilization:  rec.Utilization,
				Minute:       rec.Minute,
				Message: fmt.Sprintf("[%s] %s fired on %s at %s: %s (value %.2f)",
					sev, rule.Name, cp, rec.Minute.Format("15:04"), rule.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[key] = a
			e.lastFire[key] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: alert fired",
				"rule", rule.Name,
				"checkpoint", cp,
				"value", value,
				"severity", sev,
			)
			e.deliverFn(&alertCopy)
			continue
		}

		a, ok := e.active[key]
		if !ok {
			e.mu.Unlock()
			continue
		}
		resolved := now
		a.State = "resolved"
		a.ResolvedAt = &resolved
		a.Level = rec.Level
		a.Utilization = rec.Utilization
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.mu.Unlock()

		slog.Info("alerts: alert resolved", "rule", rule.Name, "checkpoint", cp)
		e.deliverFn(&alertCopy)
	}
}

// trackStreak updates and returns the checkpoint's consecutive RED minutes.
// A repeated record for the same minute replaces the previous one instead of
// extending the streak. Caller holds e.mu.
func (e *Engine) trackStreak(rec types.HistoryRecord) int {
	cp := rec.CheckpointID
	prev, seen := e.lastMinute[cp]
	sameMinute := seen && prev.Equal(rec.Minute)
	e.lastMinute[cp] = rec.Minute

	switch {
	case rec.Level != types.LevelRed:
		e.redRun[cp] = 0
	case sameMinute && e.redRun[cp] > 0:
		// already counted
	default:
		e.redRun[cp]++
	}
	return e.redRun[cp]
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
