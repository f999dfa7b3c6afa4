package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/multierr"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Exposition metric names read from prometheus-format devices.
const (
	metricPulse    = "pulse_rate_bpm"
	metricSpO2     = "spo2_percent"
	metricSteps    = "steps_total"
	metricCalories = "calories_kcal"
)

var promAccept = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// payload accepts both the band shape {bpm, spo2} and the full reading shape.
type payload struct {
	PulseRate *float64 `json:"pulseRate"`
	BPM       *float64 `json:"bpm"`
	SpO2      *float64 `json:"spo2"`
	Steps     *float64 `json:"steps"`
	Calories  *float64 `json:"calories"`
	DeviceID  string   `json:"deviceId"`
}

// decodeJSON reads one JSON reading. pulseRate wins over bpm when both are set.
// Range checks are left to the server.
func decodeJSON(r io.Reader) (types.Reading, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return types.Reading{}, fmt.Errorf("decode json: %w", err)
	}
	pulse := p.PulseRate
	if pulse == nil {
		pulse = p.BPM
	}
	if pulse == nil && p.SpO2 == nil {
		return types.Reading{}, ErrNoReading
	}
	return types.Reading{
		PulseRate: pulse,
		SpO2:      p.SpO2,
		Steps:     p.Steps,
		Calories:  p.Calories,
		DeviceID:  p.DeviceID,
	}, nil
}

// decodeMetrics reads a Prometheus text exposition. Absent families leave the
// field nil; a parse error after some families were read still yields them.
func decodeMetrics(r io.Reader) (types.Reading, error) {
	dec := expfmt.NewDecoder(r, expfmt.NewFormat(expfmt.TypeTextPlain))
	mfs := make(map[string]*dto.MetricFamily)
	var perr error
	for {
		mf := &dto.MetricFamily{}
		if err := dec.Decode(mf); err != nil {
			if !errors.Is(err, io.EOF) {
				perr = err
			}
			break
		}
		mfs[mf.GetName()] = mf
	}
	if perr != nil && len(mfs) == 0 {
		return types.Reading{}, fmt.Errorf("parse prometheus text: %w", perr)
	}

	out := types.Reading{
		PulseRate: lastValue(mfs[metricPulse]),
		SpO2:      lastValue(mfs[metricSpO2]),
		Steps:     lastValue(mfs[metricSteps]),
		Calories:  lastValue(mfs[metricCalories]),
	}
	if out.PulseRate == nil && out.SpO2 == nil {
		return types.Reading{}, multierr.Append(ErrNoReading, perr)
	}
	return out, nil
}

// lastValue returns the value of the last counter, gauge or untyped sample in
// mf, or nil when mf is absent or empty.
func lastValue(mf *dto.MetricFamily) *float64 {
	if mf == nil {
		return nil
	}
	var (
		v  float64
		ok bool
	)
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			v, ok = m.Gauge.GetValue(), true
		case m.Counter != nil:
			v, ok = m.Counter.GetValue(), true
		case m.Untyped != nil:
			v, ok = m.Untyped.GetValue(), true
		}
	}
	if !ok {
		return nil
	}
	return &v
}
