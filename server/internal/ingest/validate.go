package ingest

import (
	"math"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

const (
	maxPulseBPM = 300
	maxSpO2Pct  = 100
)

// validate checks r and builds the sample fields it carries. The returned
// sample has no ID or timestamp yet.
func validate(r types.Reading, defaultDevice string) (types.Sample, error) {
	pulse, err := required("pulseRate", r.PulseRate, 0, maxPulseBPM)
	if err != nil {
		return types.Sample{}, err
	}
	spo2, err := required("spo2", r.SpO2, 0, maxSpO2Pct)
	if err != nil {
		return types.Sample{}, err
	}
	steps, err := optional("steps", r.Steps)
	if err != nil {
		return types.Sample{}, err
	}
	if steps != math.Trunc(steps) {
		return types.Sample{}, &types.ValidationError{Field: "steps", Reason: "must be a whole number"}
	}
	calories, err := optional("calories", r.Calories)
	if err != nil {
		return types.Sample{}, err
	}

	device := r.DeviceID
	if device == "" {
		device = defaultDevice
	}
	return types.Sample{
		PulseRate: pulse,
		SpO2:      spo2,
		Steps:     int64(steps),
		Calories:  calories,
		DeviceID:  device,
	}, nil
}

func required(field string, v *float64, lo, hi float64) (float64, error) {
	if v == nil {
		return 0, &types.ValidationError{Field: field, Reason: "is required"}
	}
	if !finite(*v) {
		return 0, &types.ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if *v < lo || *v > hi {
		return 0, &types.ValidationError{Field: field, Reason: "is out of range"}
	}
	return *v, nil
}

// optional fields default to zero and must be non-negative.
func optional(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if !finite(*v) {
		return 0, &types.ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if *v < 0 {
		return 0, &types.ValidationError{Field: field, Reason: "must not be negative"}
	}
	return *v, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
