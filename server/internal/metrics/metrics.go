package metrics

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/gateload/gateload/pkg/types"
)

const namespace = "gateload"

// checkpointLabel is the label carried by every per-checkpoint series.
const checkpointLabel = "checkpoint"

// Metrics owns a private registry with the pipeline collectors.
type Metrics struct {
	reg *prometheus.Registry

	count       *prometheus.GaugeVec
	smoothed    *prometheus.GaugeVec
	service     *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	level       *prometheus.GaugeVec
	officers    *prometheus.GaugeVec
	records     *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	tickErrors  *prometheus.CounterVec
}

// New registers the pipeline collectors. historyLen, when non-nil, is exported
// as the current number of buffered records.
func New(historyLen func() float64) *Metrics {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	m := &Metrics{
		reg:         prometheus.NewRegistry(),
		count:       gauge("passengers_last_minute", "Passages counted in the latest processed minute.", checkpointLabel),
		smoothed:    gauge("arrival_rate_smoothed", "EWMA arrival rate in passengers per minute.", checkpointLabel),
		service:     gauge("service_rate", "Service rate in passengers per minute.", checkpointLabel),
		utilization: gauge("utilization_ratio", "Smoothed arrival rate divided by service rate.", checkpointLabel),
		level:       gauge("level", "1 for the checkpoint's current congestion level, 0 otherwise.", checkpointLabel, "level"),
		officers:    gauge("officers", "Configured officers per checkpoint.", checkpointLabel),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_total",
			Help: "History records appended, by checkpoint and level.",
		}, []string{checkpointLabel, "level"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "update_ticks_total",
			Help: "Update loop ticks by result.",
		}, []string{"result"}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "update_errors_total",
			Help: "Failed update loop ticks by error kind.",
		}, []string{"kind"}),
	}
	m.reg.MustRegister(
		m.count, m.smoothed, m.service, m.utilization, m.level, m.officers,
		m.records, m.ticks, m.tickErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if historyLen != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "history_records",
			Help: "Records currently held in the history buffer.",
		}, historyLen))
	}
	return m
}

// Observe updates the per-checkpoint gauges from an appended record.
func (m *Metrics) Observe(rec types.HistoryRecord) {
	cp := rec.CheckpointID
	m.count.WithLabelValues(cp).Set(float64(rec.Count))
	m.smoothed.WithLabelValues(cp).Set(rec.SmoothedRate)
	m.service.WithLabelValues(cp).Set(rec.ServiceRate)
	m.utilization.WithLabelValues(cp).Set(rec.Utilization)
	for _, l := range types.Levels {
		v := 0.0
		if l == rec.Level {
			v = 1
		}
		m.level.WithLabelValues(cp, string(l)).Set(v)
	}
	m.records.WithLabelValues(cp, string(rec.Level)).Inc()
}

// ObserveTick counts one update loop tick. kind is empty unless the tick failed.
func (m *Metrics) ObserveTick(result, kind string) {
	m.ticks.WithLabelValues(result).Inc()
	if kind != "" {
		m.tickErrors.WithLabelValues(kind).Inc()
	}
}

// SetOfficers records the staffing of cp.
func (m *Metrics) SetOfficers(cp string, n int) {
	m.officers.WithLabelValues(cp).Set(float64(n))
}

// Gather returns the current metric families.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.reg.Gather()
}

// ServeHTTP writes the registry in the Prometheus text format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	families, err := m.reg.Gather()
	if err != nil {
		slog.Error("metrics: gather failed", "err", err)
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}
	if cp := r.URL.Query().Get(checkpointLabel); cp != "" {
		families = filterCheckpoint(families, cp)
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
			http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", string(format))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// filterCheckpoint keeps families without a checkpoint label untouched and
// trims labelled ones to the series of cp. Families left empty are dropped.
func filterCheckpoint(families []*dto.MetricFamily, cp string) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		labelled := false
		var kept []*dto.Metric
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() != checkpointLabel {
					continue
				}
				labelled = true
				if l.GetValue() == cp {
					kept = append(kept, metric)
				}
				break
			}
		}
		if !labelled {
			out = append(out, mf)
			continue
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, &dto.MetricFamily{
			Name:   mf.Name,
			Help:   mf.Help,
			Type:   mf.Type,
			Metric: kept,
		})
	}
	return out
}
