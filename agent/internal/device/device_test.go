package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pulsewatch/pulsewatch/agent/internal/config"
)

const bandMetrics = `
# HELP pulse_rate_bpm Current pulse rate.
# TYPE pulse_rate_bpm gauge
pulse_rate_bpm 72
# HELP spo2_percent Current oxygen saturation.
# TYPE spo2_percent gauge
spo2_percent 97.5
# HELP steps_total Steps since the last reading.
# TYPE steps_total counter
steps_total 12
`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func poll(t *testing.T, dev config.Device) (float64, float64, string, error) {
	t.Helper()
	p, err := New(dev)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := p.Poll(context.Background())
	if err != nil {
		return 0, 0, "", err
	}
	var pulse, spo2 float64
	if r.PulseRate != nil {
		pulse = *r.PulseRate
	}
	if r.SpO2 != nil {
		spo2 = *r.SpO2
	}
	return pulse, spo2, r.DeviceID, nil
}

func TestPoll_BandShape(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"bpm": 64, "spo2": 99}`)
	pulse, spo2, id, err := poll(t, config.Device{ID: "band-1", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if pulse != 64 || spo2 != 99 {
		t.Errorf("reading: got %v/%v, want 64/99", pulse, spo2)
	}
	if id != "band-1" {
		t.Errorf("device id: got %q, want band-1 from config", id)
	}
}

func TestPoll_FullShape(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"pulseRate": 80, "bpm": 10, "spo2": 95, "steps": 7, "calories": 0.4, "deviceId": "wrist"}`)
	p, _ := New(config.Device{ID: "band-1", Endpoint: srv.URL})
	r, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if *r.PulseRate != 80 {
		t.Errorf("pulseRate: got %v, want 80 (pulseRate wins over bpm)", *r.PulseRate)
	}
	if r.Steps == nil || *r.Steps != 7 || r.Calories == nil || *r.Calories != 0.4 {
		t.Errorf("steps/calories: got %v/%v", r.Steps, r.Calories)
	}
	if r.DeviceID != "wrist" {
		t.Errorf("device id: got %q, want wrist from payload", r.DeviceID)
	}
}

func TestPoll_PartialReadingIsShipped(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"bpm": 70}`)
	p, _ := New(config.Device{ID: "d", Endpoint: srv.URL})
	r, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if r.SpO2 != nil {
		t.Errorf("spo2: got %v, want nil", *r.SpO2)
	}
}

func TestPoll_NoReading(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"204", http.StatusNoContent, ""},
		{"empty object", http.StatusOK, `{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			_, _, _, err := poll(t, config.Device{ID: "d", Endpoint: srv.URL})
			if !errors.Is(err, ErrNoReading) {
				t.Errorf("Poll: got %v, want ErrNoReading", err)
			}
		})
	}
}

func TestPoll_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"status", http.StatusServiceUnavailable, "", "unexpected status 503"},
		{"bad json", http.StatusOK, `{"bpm":`, "decode json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			_, _, _, err := poll(t, config.Device{ID: "d", Endpoint: srv.URL})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Poll: got %v, want error containing %q", err, tc.want)
			}
			if errors.Is(err, ErrNoReading) {
				t.Errorf("Poll: got ErrNoReading for %s", tc.name)
			}
		})
	}
}

func TestPoll_Prometheus(t *testing.T) {
	srv := serve(t, http.StatusOK, bandMetrics)
	p, _ := New(config.Device{ID: "bridge", Endpoint: srv.URL, Format: "prometheus"})
	r, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if *r.PulseRate != 72 || *r.SpO2 != 97.5 || *r.Steps != 12 {
		t.Errorf("reading: got %v/%v/%v, want 72/97.5/12", *r.PulseRate, *r.SpO2, *r.Steps)
	}
	if r.Calories != nil {
		t.Errorf("calories: got %v, want nil when absent", *r.Calories)
	}
	if r.DeviceID != "bridge" {
		t.Errorf("device id: got %q, want bridge", r.DeviceID)
	}
}

func TestPoll_PrometheusWithoutVitals(t *testing.T) {
	srv := serve(t, http.StatusOK, "# TYPE up gauge\nup 1\n")
	_, _, _, err := poll(t, config.Device{ID: "d", Endpoint: srv.URL, Format: "prometheus"})
	if !errors.Is(err, ErrNoReading) {
		t.Errorf("Poll: got %v, want ErrNoReading", err)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(config.Device{ID: "d", Endpoint: "http://x", Format: "xml"}); err == nil {
		t.Fatal("New: expected error for unknown format")
	}
}

func TestAuthRoundTripper(t *testing.T) {
	t.Setenv("TEST_DEV_KEY", "k1")
	t.Setenv("TEST_DEV_TOKEN", "t1")
	t.Setenv("TEST_DEV_PW", "p1")

	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(r *http.Request) bool
	}{
		{"apikey default header", config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_DEV_KEY"},
			func(r *http.Request) bool { return r.Header.Get("X-API-Key") == "k1" }},
		{"apikey custom header", config.AuthConfig{Mode: "apikey", Header: "X-Band", KeyEnv: "TEST_DEV_KEY"},
			func(r *http.Request) bool { return r.Header.Get("X-Band") == "k1" }},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_DEV_TOKEN"},
			func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer t1" }},
		{"basic", config.AuthConfig{Mode: "basic", Username: "u", PasswordEnv: "TEST_DEV_PW"},
			func(r *http.Request) bool { u, p, ok := r.BasicAuth(); return ok && u == "u" && p == "p1" }},
		{"none", config.AuthConfig{Mode: "none"},
			func(r *http.Request) bool { return r.Header.Get("Authorization") == "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tc.check(r) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(`{"bpm":70,"spo2":98}`))
			}))
			defer srv.Close()

			if _, _, _, err := poll(t, config.Device{ID: "d", Endpoint: srv.URL, Auth: tc.auth}); err != nil {
				t.Errorf("Poll: %v", err)
			}
		})
	}
}
