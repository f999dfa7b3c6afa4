package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/ingest"
	"github.com/pulsewatch/pulsewatch/server/internal/metrics"
	"github.com/pulsewatch/pulsewatch/server/internal/report"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

// Query defaults.
const (
	defaultHours      = 24
	defaultLimit      = 100
	defaultAlertLimit = 50
	maxBodyBytes      = 1 << 16
)

// Ingester runs a reading through the pipeline. *ingest.Coordinator
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, r types.Reading) (ingest.Result, error)
}

// Reporter answers report queries. *report.Service satisfies it.
type Reporter interface {
	Stats(ctx context.Context, days int) (report.Period, error)
	Monthly(ctx context.Context, year, month int, email string) (report.Monthly, error)
}

// Deps are the components the HTTP API serves.
type Deps struct {
	Ingester Ingester
	Samples  store.SampleStore
	Alerts   store.AlertStore
	Reports  Reporter

	// Live serves /ws/stream; nil leaves the route unmounted.
	Live http.Handler
	// Subscribers reports the live subscriber count for /api/health.
	Subscribers func() int
	// Clients reports the connected WebSocket client count for /api/health.
	Clients func() int
}

// Handler is the HTTP handler for the REST API, /metrics and /ws/stream.
type Handler struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
	mux  chi.Router
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps, log *zap.Logger) http.Handler {
	h := &Handler{deps: deps, log: logging.OrNop(log), now: time.Now}

	r := chi.NewRouter()
	r.Use(RequestID, Logging(h.log), Recovery(h.log))
	r.Use(cors.AllowAll().Handler)

	r.Get("/api/health", h.health)
	r.Handle("/metrics", metrics.Handler())
	if deps.Live != nil {
		r.Handle("/ws/stream", deps.Live)
	}

	r.Route("/api/data", func(r chi.Router) {
		r.Post("/", h.ingest)
		r.Get("/", h.listSamples)
		r.Get("/stats", h.sampleStats)
		r.Get("/latest", h.latestSample)
	})
	r.Route("/api/alerts", func(r chi.Router) {
		r.Get("/", h.listAlerts)
		r.Get("/count", h.unreadCount)
		r.Put("/{id}/read", h.markRead)
		r.Put("/{id}/resolve", h.markResolved)
		r.Delete("/{id}", h.deleteAlert)
	})
	r.Route("/api/report", func(r chi.Router) {
		r.Get("/stats", h.reportStats)
		r.Get("/monthly", h.monthlyReport)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})

	h.mux = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/health: liveness plus live subscriber count.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "OK", Timestamp: h.now().UTC()}
	if h.deps.Subscribers != nil {
		resp.Subscribers = h.deps.Subscribers()
	}
	if h.deps.Clients != nil {
		resp.Clients = h.deps.Clients()
	}
	jsonResp(w, http.StatusOK, resp)
}

// ingest handles POST /api/data.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var in types.Reading
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		jsonErr(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	res, err := h.deps.Ingester.Ingest(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, "Failed to save health data")
		return
	}
	jsonResp(w, http.StatusCreated, IngestResponse{Success: true, Data: res.Sample, Alerts: res.Alerts})
}

// listSamples handles GET /api/data?hours=24&limit=100, newest first.
func (h *Handler) listSamples(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(w, r, "hours", defaultHours)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	out, err := h.deps.Samples.QueryRange(r.Context(), h.since(hours), limit)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch health data")
		return
	}
	ok200(w, out, len(out))
}

// sampleStats handles GET /api/data/stats?hours=24.
func (h *Handler) sampleStats(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(w, r, "hours", defaultHours)
	if !ok {
		return
	}
	st, err := h.deps.Samples.Aggregate(r.Context(), h.since(hours))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch statistics")
		return
	}
	ok200(w, st, -1)
}

// latestSample handles GET /api/data/latest.
func (h *Handler) latestSample(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Samples.Latest(r.Context())
	if err != nil {
		h.fail(w, r, err, "No health data found")
		return
	}
	ok200(w, s, -1)
}

// listAlerts handles GET /api/alerts?limit=50&skip=0&unreadOnly=true. Each
// alert carries its sample when it still exists.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultAlertLimit)
	if !ok {
		return
	}
	skip, ok := intParam(w, r, "skip", 0)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"

	out, err := h.deps.Alerts.List(r.Context(), store.AlertFilter{UnreadOnly: unreadOnly, Limit: limit, Skip: skip})
	if err != nil {
		h.fail(w, r, err, "Failed to fetch alerts")
		return
	}
	for i := range out {
		s, err := h.deps.Samples.Sample(r.Context(), out[i].SampleID)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				h.log.Warn("api: populate alert sample", zap.String("alert_id", out[i].ID), zap.Error(err))
			}
			continue
		}
		out[i].Sample = &s
	}
	ok200(w, out, len(out))
}

// unreadCount handles GET /api/alerts/count.
func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Alerts.UnreadCount(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch alert count")
		return
	}
	ok200(w, UnreadCount{UnreadCount: n}, -1)
}

// markRead handles PUT /api/alerts/{id}/read.
func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Alerts.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Alert not found")
		return
	}
	ok200(w, a, -1)
}

// markResolved handles PUT /api/alerts/{id}/resolve.
func (h *Handler) markResolved(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Alerts.MarkResolved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Alert not found")
		return
	}
	ok200(w, a, -1)
}

// deleteAlert handles DELETE /api/alerts/{id}.
func (h *Handler) deleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Alerts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "Alert not found")
		return
	}
	jsonResp(w, http.StatusOK, envelope{Success: true, Message: "Alert deleted successfully"})
}

// reportStats handles GET /api/report/stats?days=30.
func (h *Handler) reportStats(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", report.DefaultDays)
	if !ok {
		return
	}
	p, err := h.deps.Reports.Stats(r.Context(), days)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch report statistics")
		return
	}
	if p.Stats == nil {
		ok200(w, map[string]interface{}{
			"message": "No data available for the specified period",
			"stats":   nil,
		}, -1)
		return
	}
	ok200(w, p, -1)
}

// monthlyReport handles GET /api/report/monthly?month=&year=&email=.
func (h *Handler) monthlyReport(w http.ResponseWriter, r *http.Request) {
	month, ok := intParam(w, r, "month", 0)
	if !ok {
		return
	}
	year, ok := intParam(w, r, "year", 0)
	if !ok {
		return
	}
	m, err := h.deps.Reports.Monthly(r.Context(), year, month, r.URL.Query().Get("email"))
	if err != nil {
		h.fail(w, r, err, "Failed to generate monthly report")
		return
	}
	ok200(w, m, -1)
}

// --- helpers ----------------------------------------------------------------

// maxHours is the widest window a time.Duration can express.
const maxHours = math.MaxInt64 / int64(time.Hour)

// since returns the start of a window of the last hours hours. Windows too
// wide for a time.Duration start at the zero time.
func (h *Handler) since(hours int) time.Time {
	if int64(hours) > maxHours {
		return time.Time{}
	}
	return h.now().Add(-time.Duration(hours) * time.Hour)
}

// fail maps err onto a status code. msg is the client-facing summary.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, types.ErrValidation):
		jsonErr(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, types.ErrNotFound):
		jsonErr(w, http.StatusNotFound, msg, "")
	case errors.Is(err, types.ErrNotification):
		jsonErr(w, http.StatusBadGateway, msg, err.Error())
	default:
		h.log.Error("api: request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		jsonErr(w, http.StatusInternalServerError, msg, err.Error())
	}
}

// intParam reads a non-negative integer query parameter. On a malformed
// value it writes a 400 and reports false.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		jsonErr(w, http.StatusBadRequest, "Validation failed", name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// ok200 writes a success envelope. count < 0 omits the count field.
func ok200(w http.ResponseWriter, data interface{}, count int) {
	env := envelope{Success: true, Data: data}
	if count >= 0 {
		env.Count = &count
	}
	jsonResp(w, http.StatusOK, env)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg, details string) {
	jsonResp(w, code, errorResponse{Error: msg, Details: details})
}
