package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gateload/gateload/server/internal/alerts"
	"github.com/gateload/gateload/server/internal/pipeline"
	"github.com/gateload/gateload/server/internal/query"
)

// AlertLister exposes the alerts shown by GET /api/v1/alerts.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Deps wires a Handler to the running service.
type Deps struct {
	Query   *query.Service
	Alerts  AlertLister
	Status  func() pipeline.Status
	Records func() int
	// HistoryCap is the record store's fixed capacity.
	HistoryCap int
	CSVPath    string

	// WriteGuard wraps state-changing routes. Nil leaves them open.
	WriteGuard func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	d   Deps
	mux *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{d: d, mux: http.NewServeMux()}

	guard := d.WriteGuard
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/api/v1/latest", h.latest)
	h.mux.Handle("/api/v1/capacity", guard(http.HandlerFunc(h.capacity)))
	h.mux.HandleFunc("/api/v1/metrics/last-minutes", h.metricsWindow)
	h.mux.HandleFunc("/api/v1/color-durations", h.colorDurations)
	h.mux.HandleFunc("/api/v1/warning-durations", h.warningDurations)
	h.mux.HandleFunc("/api/v1/utilization", h.utilization)
	h.mux.HandleFunc("/api/v1/csv/latest", h.csvLatest)
	h.mux.HandleFunc("/api/v1/destinations", h.destinations)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp := HealthResponse{
		OK:              true,
		CSVPath:         h.d.CSVPath,
		HistoryCapacity: h.d.HistoryCap,
		Checkpoints:     h.d.Query.CheckpointIDs(),
		Model:           h.d.Query.ModelInfo(),
	}
	if h.d.Records != nil {
		resp.Records = h.d.Records()
	}
	if h.d.Status != nil {
		resp.Loop = h.d.Status()
	}
	if h.d.Alerts != nil {
		for _, a := range h.d.Alerts.Active() {
			if a.State == "firing" {
				resp.AlertCount++
			}
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, ok := positiveInt(w, r, "minutes", query.DefaultSummaryMinutes, query.MaxWindowMinutes)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.Summary(n))
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, ok := positiveInt(w, r, "minutes", query.DefaultLatestMinutes, query.MaxWindowMinutes)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.Latest(n))
}

func (h *Handler) capacity(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req CapacityRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Officers == nil {
		jsonErr(w, http.StatusBadRequest, "officers is required")
		return
	}
	ack := h.d.Query.SetCapacity(req.CheckpointID, *req.Officers)
	slog.Info("api: capacity updated",
		"checkpoint", ack.CheckpointID, "officers", ack.Officers, "requested", *req.Officers)
	jsonResp(w, http.StatusOK, ack)
}

func (h *Handler) metricsWindow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, ok := positiveInt(w, r, "minutes", query.DefaultMetricsMinutes, query.MaxWindowMinutes)
	if !ok {
		return
	}
	mw, err := h.d.Query.MetricsWindow(n)
	if err != nil {
		if query.IsClientError(err) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("api: metrics window", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResp(w, http.StatusOK, mw)
}

func (h *Handler) colorDurations(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.ColorDurations())
}

func (h *Handler) warningDurations(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.WarningDurations())
}

func (h *Handler) utilization(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.CurrentUtilization(r.URL.Query().Get("checkpoint_id")))
}

func (h *Handler) csvLatest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, ok := positiveInt(w, r, "limit", query.DefaultCSVLimit, query.MaxCSVLimit)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.CSVTail(n))
}

func (h *Handler) destinations(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.d.Query.Destinations())
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	out := []*alerts.Alert{}
	if h.d.Alerts != nil {
		out = append(out, h.d.Alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

// allow writes 405 and returns false unless r uses method.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// positiveInt reads query parameter name, falling back to def when absent.
// It writes 400 and returns false for anything but an integer in [1, max].
func positiveInt(w http.ResponseWriter, r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	if n > max {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("%s must not exceed %d", name, max))
		return 0, false
	}
	return n, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
