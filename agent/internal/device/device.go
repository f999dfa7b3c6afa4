package device

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/agent/internal/config"
	"github.com/pulsewatch/pulsewatch/pkg/types"
)

const (
	defaultPollTimeout = 10 * time.Second
	maxBody            = 1 << 20
)

// ErrNoReading is returned when the device has no current reading.
var ErrNoReading = errors.New("device: no reading available")

// Poller fetches readings from one device.
type Poller struct {
	dev    config.Device
	client *http.Client
}

// New returns a Poller for dev. It builds the HTTP client once and reuses it
// across polls.
func New(dev config.Device) (*Poller, error) {
	switch dev.Format {
	case "", "json", "prometheus":
	default:
		return nil, fmt.Errorf("device %q: unsupported format %q", dev.ID, dev.Format)
	}
	return &Poller{dev: dev, client: buildHTTPClient(dev)}, nil
}

// ID returns the configured device id.
func (p *Poller) ID() string { return p.dev.ID }

// Poll fetches and decodes the device's current reading. The reading's
// DeviceID falls back to the configured id when the payload has none.
func (p *Poller) Poll(ctx context.Context) (types.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.dev.Endpoint, nil)
	if err != nil {
		return types.Reading{}, fmt.Errorf("device %q: build request: %w", p.dev.ID, err)
	}
	if p.dev.Format == "prometheus" {
		req.Header.Set("Accept", promAccept)
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return types.Reading{}, fmt.Errorf("device %q: http get: %w", p.dev.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return types.Reading{}, ErrNoReading
	case resp.StatusCode != http.StatusOK:
		return types.Reading{}, fmt.Errorf("device %q: unexpected status %d", p.dev.ID, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBody)
	var r types.Reading
	if p.dev.Format == "prometheus" {
		r, err = decodeMetrics(body)
	} else {
		r, err = decodeJSON(body)
	}
	if err != nil {
		return types.Reading{}, fmt.Errorf("device %q: %w", p.dev.ID, err)
	}
	if r.DeviceID == "" {
		r.DeviceID = p.dev.ID
	}
	return r, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the device's auth and TLS settings.
func buildHTTPClient(dev config.Device) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: dev.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: dev.Auth,
		},
		Timeout: defaultPollTimeout,
	}
}
