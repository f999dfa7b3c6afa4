package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/api"
	"github.com/pulsewatch/pulsewatch/server/internal/ingest"
	"github.com/pulsewatch/pulsewatch/server/internal/report"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fixture struct {
	h       http.Handler
	samples *store.Samples
	alerts  *store.Alerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	samples, alerts := store.NewSamples(), store.NewAlerts()
	return &fixture{
		h: api.New(api.Deps{
			Ingester:    ingest.New(samples, alerts, nil, nil, "", nil),
			Samples:     samples,
			Alerts:      alerts,
			Reports:     report.New(samples, nil, nil),
			Subscribers: func() int { return 3 },
			Clients:     func() int { return 2 },
		}, nil),
		samples: samples,
		alerts:  alerts,
	}
}

type stubIngester struct {
	err   error
	panic bool
}

func (s stubIngester) Ingest(context.Context, types.Reading) (ingest.Result, error) {
	if s.panic {
		panic("boom")
	}
	return ingest.Result{}, s.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path, "")
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// post ingests a reading and returns the persisted sample id.
func (f *fixture) post(t *testing.T, pulse, spo2 float64) string {
	t.Helper()
	rr := do(t, f.h, http.MethodPost, "/api/data", fmt.Sprintf(`{"pulseRate":%v,"spo2":%v}`, pulse, spo2))
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST /api/data: got %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data types.Sample `json:"data"`
	}
	decode(t, rr, &resp)
	return resp.Data.ID
}

type listResp[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
	Count   int  `json:"count"`
}

type oneResp[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type errResp struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// --- POST /api/data ---------------------------------------------------------

func TestIngest_Created(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/data", `{"pulseRate":45,"spo2":97,"deviceId":"band-1"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
	var resp struct {
		Success bool          `json:"success"`
		Data    types.Sample  `json:"data"`
		Alerts  []types.Alert `json:"alerts"`
	}
	decode(t, rr, &resp)
	if !resp.Success || resp.Data.ID == "" || resp.Data.DeviceID != "band-1" {
		t.Errorf("response: got %+v", resp)
	}
	if !resp.Data.IsEmergency {
		t.Error("isEmergency: got false, want true")
	}
	if len(resp.Alerts) != 2 {
		t.Errorf("alerts: got %d, want 2", len(resp.Alerts))
	}
}

func TestIngest_NormalHasEmptyAlerts(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/data", `{"pulseRate":75,"spo2":98,"steps":100,"calories":5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"alerts":[]`) {
		t.Errorf("body: got %s, want empty alerts array", rr.Body.String())
	}
}

func TestIngest_ValidationError(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/data", `{"pulseRate":75}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var e errResp
	decode(t, rr, &e)
	if e.Error != "Validation failed" || !strings.Contains(e.Details, "spo2") {
		t.Errorf("error: got %+v", e)
	}
	if f.samples.Count() != 0 {
		t.Errorf("samples: got %d, want 0", f.samples.Count())
	}
}

func TestIngest_BadJSON(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.h, http.MethodPost, "/api/data", `{"pulseRate":`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestIngest_PersistenceError(t *testing.T) {
	h := api.New(api.Deps{Ingester: stubIngester{err: fmt.Errorf("ingest: append sample: %w", types.ErrPersistence)}}, nil)
	rr := do(t, h, http.MethodPost, "/api/data", `{"pulseRate":75,"spo2":98}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	var e errResp
	decode(t, rr, &e)
	if e.Error != "Failed to save health data" {
		t.Errorf("error: got %q", e.Error)
	}
}

// --- GET /api/data ----------------------------------------------------------

func TestListSamples_NewestFirstWithLimit(t *testing.T) {
	f := newFixture(t)
	for _, p := range []float64{70, 71, 72} {
		f.post(t, p, 98)
		time.Sleep(2 * time.Millisecond)
	}

	rr := get(t, f.h, "/api/data?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp listResp[types.Sample]
	decode(t, rr, &resp)
	if resp.Count != 2 || len(resp.Data) != 2 {
		t.Fatalf("count: got %d/%d, want 2", resp.Count, len(resp.Data))
	}
	if resp.Data[0].PulseRate != 72 || resp.Data[1].PulseRate != 71 {
		t.Errorf("order: got %v, %v, want 72, 71", resp.Data[0].PulseRate, resp.Data[1].PulseRate)
	}
}

func TestListSamples_Empty(t *testing.T) {
	rr := get(t, newFixture(t).h, "/api/data")
	if !strings.Contains(rr.Body.String(), `"data":[]`) || !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Errorf("body: got %s", rr.Body.String())
	}
}

func TestListSamples_BadQuery(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"hours=abc", "limit=-1"} {
		if rr := get(t, f.h, "/api/data?"+q); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestSampleStats(t *testing.T) {
	f := newFixture(t)
	f.post(t, 60, 96)
	f.post(t, 80, 98)

	var resp oneResp[types.Stats]
	decode(t, get(t, f.h, "/api/data/stats"), &resp)
	if resp.Data.Count != 2 || resp.Data.AveragePulse != 70 || resp.Data.AverageSpO2 != 97 {
		t.Errorf("stats: got %+v", resp.Data)
	}
}

func TestLatest(t *testing.T) {
	f := newFixture(t)
	if rr := get(t, f.h, "/api/data/latest"); rr.Code != http.StatusNotFound {
		t.Fatalf("empty latest: got %d, want 404", rr.Code)
	}

	rr := do(t, f.h, http.MethodPost, "/api/data",
		`{"pulseRate":45.5,"spo2":97.25,"steps":12,"calories":3.5,"deviceId":"band-7"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST /api/data: got %d, want 201", rr.Code)
	}
	var posted oneResp[types.Sample]
	decode(t, rr, &posted)

	var resp oneResp[types.Sample]
	decode(t, get(t, f.h, "/api/data/latest"), &resp)
	got, want := resp.Data, posted.Data
	if got.ID != want.ID {
		t.Errorf("latest id: got %q, want %q", got.ID, want.ID)
	}
	if got.PulseRate != 45.5 || got.SpO2 != 97.25 || got.Steps != 12 || got.Calories != 3.5 {
		t.Errorf("latest readings: got %+v", got)
	}
	if got.DeviceID != "band-7" {
		t.Errorf("latest deviceId: got %q, want band-7", got.DeviceID)
	}
	if !got.IsEmergency {
		t.Error("latest isEmergency: got false, want true for pulse 45.5")
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("latest timestamp: got %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestHugeWindows(t *testing.T) {
	f := newFixture(t)
	f.post(t, 70, 98)

	for _, q := range []string{"3000000", "2562048", "9223372036854775807"} {
		var list listResp[types.Sample]
		decode(t, get(t, f.h, "/api/data?hours="+q), &list)
		if list.Count != 1 {
			t.Errorf("GET /api/data?hours=%s: count %d, want 1", q, list.Count)
		}

		var stats oneResp[types.Stats]
		decode(t, get(t, f.h, "/api/data/stats?hours="+q), &stats)
		if stats.Data.Count != 1 {
			t.Errorf("GET /api/data/stats?hours=%s: count %d, want 1", q, stats.Data.Count)
		}

		var rep oneResp[report.Period]
		decode(t, get(t, f.h, "/api/report/stats?days="+q), &rep)
		if rep.Data.Stats == nil || rep.Data.Stats.DataPoints != 1 {
			t.Errorf("GET /api/report/stats?days=%s: got %+v, want 1 data point", q, rep.Data.Stats)
		}
	}
}

// --- /api/alerts ------------------------------------------------------------

func TestListAlerts_PopulatesSample(t *testing.T) {
	f := newFixture(t)
	id := f.post(t, 45, 97)

	var resp listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts"), &resp)
	if resp.Count != 2 {
		t.Fatalf("count: got %d, want 2", resp.Count)
	}
	for _, a := range resp.Data {
		if a.Sample == nil || a.Sample.ID != id {
			t.Errorf("alert %s: sample not populated", a.Kind)
		}
	}
	// Newest first: emergency was created after pulse_low.
	if resp.Data[0].Kind != types.KindEmergency {
		t.Errorf("first alert: got %v, want emergency", resp.Data[0].Kind)
	}
}

func TestAlerts_ReadFlowAndCount(t *testing.T) {
	f := newFixture(t)
	f.post(t, 45, 97)

	var list listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts"), &list)
	target := list.Data[0].ID

	var count oneResp[api.UnreadCount]
	decode(t, get(t, f.h, "/api/alerts/count"), &count)
	if count.Data.UnreadCount != 2 {
		t.Fatalf("unread: got %d, want 2", count.Data.UnreadCount)
	}

	for i := 0; i < 2; i++ {
		rr := do(t, f.h, http.MethodPut, "/api/alerts/"+target+"/read", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("PUT read #%d: got %d, want 200", i+1, rr.Code)
		}
		var a oneResp[types.Alert]
		decode(t, rr, &a)
		if !a.Data.Read {
			t.Error("isRead: got false, want true")
		}
	}

	decode(t, get(t, f.h, "/api/alerts/count"), &count)
	if count.Data.UnreadCount != 1 {
		t.Errorf("unread after read: got %d, want 1", count.Data.UnreadCount)
	}

	var unread listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts?unreadOnly=true"), &unread)
	if unread.Count != 1 || unread.Data[0].ID == target {
		t.Errorf("unreadOnly: got %+v", unread.Data)
	}
}

func TestAlerts_Paging(t *testing.T) {
	f := newFixture(t)
	f.post(t, 40, 80) // three alerts

	var resp listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts?limit=1&skip=1"), &resp)
	if resp.Count != 1 || resp.Data[0].Kind != types.KindSpO2Low {
		t.Errorf("page: got %+v, want spo2_low", resp.Data)
	}
}

func TestAlerts_Resolve(t *testing.T) {
	f := newFixture(t)
	f.post(t, 130, 97)
	var list listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts"), &list)

	rr := do(t, f.h, http.MethodPut, "/api/alerts/"+list.Data[0].ID+"/resolve", "")
	var a oneResp[types.Alert]
	decode(t, rr, &a)
	if !a.Data.Resolved {
		t.Error("isResolved: got false, want true")
	}
}

func TestAlerts_MissingIs404(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/api/alerts/nope/read"},
		{http.MethodPut, "/api/alerts/nope/resolve"},
		{http.MethodDelete, "/api/alerts/nope"},
	} {
		rr := do(t, f.h, tc.method, tc.path, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: got %d, want 404", tc.method, tc.path, rr.Code)
		}
		var e errResp
		decode(t, rr, &e)
		if e.Error != "Alert not found" {
			t.Errorf("%s %s: error %q", tc.method, tc.path, e.Error)
		}
	}
}

func TestAlerts_Delete(t *testing.T) {
	f := newFixture(t)
	f.post(t, 45, 97)
	var list listResp[types.Alert]
	decode(t, get(t, f.h, "/api/alerts"), &list)

	rr := do(t, f.h, http.MethodDelete, "/api/alerts/"+list.Data[0].ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE: got %d, want 200", rr.Code)
	}
	decode(t, get(t, f.h, "/api/alerts"), &list)
	if list.Count != 1 {
		t.Errorf("after delete: got %d alerts, want 1", list.Count)
	}
}

// --- /api/report ------------------------------------------------------------

func TestReportStats(t *testing.T) {
	f := newFixture(t)

	var empty oneResp[map[string]interface{}]
	decode(t, get(t, f.h, "/api/report/stats"), &empty)
	if v, ok := empty.Data["stats"]; !ok || v != nil {
		t.Errorf("empty stats: got %v, want null", empty.Data)
	}

	f.post(t, 70, 97.456)
	var resp oneResp[report.Period]
	decode(t, get(t, f.h, "/api/report/stats?days=7"), &resp)
	if resp.Data.Stats == nil || resp.Data.Stats.AverageSpO2 != 97.46 || resp.Data.Label != "7 days" {
		t.Errorf("stats: got %+v", resp.Data)
	}
}

func TestMonthlyReport(t *testing.T) {
	f := newFixture(t)
	if rr := get(t, f.h, "/api/report/monthly?year=2001&month=1"); rr.Code != http.StatusNotFound {
		t.Errorf("no data: got %d, want 404", rr.Code)
	}
	if rr := get(t, f.h, "/api/report/monthly?month=13"); rr.Code != http.StatusBadRequest {
		t.Errorf("month 13: got %d, want 400", rr.Code)
	}

	f.post(t, 70, 97)
	var resp oneResp[report.Monthly]
	decode(t, get(t, f.h, "/api/report/monthly"), &resp)
	if resp.Data.Stats.DataPoints != 1 {
		t.Errorf("monthly: got %+v", resp.Data)
	}

	// No mailer configured.
	if rr := get(t, f.h, "/api/report/monthly?email=x@example.com"); rr.Code != http.StatusBadGateway {
		t.Errorf("email without mailer: got %d, want 502", rr.Code)
	}
}

// --- health, metrics, middleware -------------------------------------------

func TestHealth(t *testing.T) {
	var resp api.HealthResponse
	rr := get(t, newFixture(t).h, "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	decode(t, rr, &resp)
	if resp.Status != "OK" || resp.Subscribers != 3 || resp.Clients != 2 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.post(t, 45, 97)

	rr := get(t, f.h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pulsewatch_http_requests_total") {
		t.Error("metrics: missing pulsewatch_http_requests_total")
	}
}

func TestRequestID(t *testing.T) {
	h := newFixture(t).h

	rr := get(t, h, "/api/health")
	if rr.Header().Get(api.RequestIDHeader) == "" {
		t.Error("X-Request-ID: missing on response")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(api.RequestIDHeader); got != "abc-123" {
		t.Errorf("X-Request-ID: got %q, want abc-123", got)
	}
}

func TestRecovery(t *testing.T) {
	h := api.New(api.Deps{Ingester: stubIngester{panic: true}}, nil)
	rr := do(t, h, http.MethodPost, "/api/data", `{"pulseRate":75,"spo2":98}`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rr := httptest.NewRecorder()
	newFixture(t).h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	rr := get(t, newFixture(t).h, "/api/nope")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}
