package alerts

import "github.com/pulsewatch/pulsewatch/pkg/types"

// Clinical thresholds. Comparisons are strict, so a value sitting exactly on
// a threshold is normal.
const (
	PulseLowBPM  = 50.0
	PulseHighBPM = 120.0
	SpO2LowPct   = 90.0
)

// field selects the sample reading a condition tests.
type field uint8

const (
	fieldPulse field = iota
	fieldSpO2
)

func (f field) of(s types.Sample) float64 {
	if f == fieldSpO2 {
		return s.SpO2
	}
	return s.PulseRate
}

// op is a strict comparison against a limit.
type op uint8

const (
	below op = iota
	above
)

// condition is one threshold test against a sample field.
type condition struct {
	field field
	op    op
	limit float64
}

var (
	pulseLow  = condition{field: fieldPulse, op: below, limit: PulseLowBPM}
	pulseHigh = condition{field: fieldPulse, op: above, limit: PulseHighBPM}
	spo2Low   = condition{field: fieldSpO2, op: below, limit: SpO2LowPct}
)

func (c condition) fires(s types.Sample) bool {
	v := c.field.of(s)
	if c.op == above {
		return v > c.limit
	}
	return v < c.limit
}
