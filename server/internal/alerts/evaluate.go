package alerts

import (
	"fmt"
	"strconv"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Evaluate returns the alert drafts raised by s, in a fixed order:
// pulse_low or pulse_high, then spo2_low, then emergency. The emergency draft
// is appended whenever any of the others fired. A normal sample yields no
// drafts.
func Evaluate(s types.Sample) []types.AlertDraft {
	var drafts []types.AlertDraft

	switch {
	case pulseLow.fires(s):
		drafts = append(drafts, newDraft(types.KindPulseLow, s))
	case pulseHigh.fires(s):
		drafts = append(drafts, newDraft(types.KindPulseHigh, s))
	}
	if spo2Low.fires(s) {
		drafts = append(drafts, newDraft(types.KindSpO2Low, s))
	}
	if len(drafts) > 0 {
		drafts = append(drafts, newDraft(types.KindEmergency, s))
	}
	return drafts
}

// IsEmergency reports whether s trips any emergency condition.
func IsEmergency(s types.Sample) bool {
	return pulseLow.fires(s) || pulseHigh.fires(s) || spo2Low.fires(s)
}

func newDraft(k types.AlertKind, s types.Sample) types.AlertDraft {
	return types.AlertDraft{Kind: k, Severity: SeverityOf(k), Message: message(k, s)}
}

// SeverityOf returns the fixed severity of an alert kind.
func SeverityOf(k types.AlertKind) types.Severity {
	switch k {
	case types.KindPulseLow, types.KindPulseHigh:
		return types.SeverityHigh
	case types.KindSpO2Low, types.KindEmergency:
		return types.SeverityCritical
	}
	return 0
}

func message(k types.AlertKind, s types.Sample) string {
	switch k {
	case types.KindPulseLow:
		return fmt.Sprintf("Low pulse rate detected: %s BPM", num(s.PulseRate))
	case types.KindPulseHigh:
		return fmt.Sprintf("High pulse rate detected: %s BPM", num(s.PulseRate))
	case types.KindSpO2Low:
		return fmt.Sprintf("Low oxygen saturation detected: %s%%", num(s.SpO2))
	case types.KindEmergency:
		return fmt.Sprintf("Emergency condition detected! Pulse: %s BPM, SpO2: %s%%", num(s.PulseRate), num(s.SpO2))
	}
	return ""
}

// num renders a reading without trailing zeros: 45 -> "45", 97.5 -> "97.5".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
