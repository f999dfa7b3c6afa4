package types

import "time"

// DefaultDeviceID is used when an ingested reading carries no device id.
const DefaultDeviceID = "default_device"

// Reading is the raw ingestion payload. PulseRate and SpO2 are pointers so a
// missing field can be told apart from a zero value.
type Reading struct {
	PulseRate *float64 `json:"pulseRate"`
	SpO2      *float64 `json:"spo2"`
	Steps     *float64 `json:"steps,omitempty"`
	Calories  *float64 `json:"calories,omitempty"`
	DeviceID  string   `json:"deviceId,omitempty"`
}

// Sample is one persisted vital-sign reading. Samples are never mutated
// after they are appended to a store.
type Sample struct {
	ID          string    `json:"id"`
	PulseRate   float64   `json:"pulseRate"`
	SpO2        float64   `json:"spo2"`
	Steps       int64     `json:"steps"`
	Calories    float64   `json:"calories"`
	DeviceID    string    `json:"deviceId"`
	Timestamp   time.Time `json:"timestamp"`
	IsEmergency bool      `json:"isEmergency"`
}

// Stats is the aggregate over a window of samples. Every field is zero for
// an empty window.
type Stats struct {
	AveragePulse   float64 `json:"averagePulse"`
	MinPulse       float64 `json:"minPulse"`
	MaxPulse       float64 `json:"maxPulse"`
	AverageSpO2    float64 `json:"averageSpo2"`
	MinSpO2        float64 `json:"minSpo2"`
	MaxSpO2        float64 `json:"maxSpo2"`
	TotalSteps     int64   `json:"totalSteps"`
	TotalCalories  float64 `json:"totalCalories"`
	Count          int     `json:"count"`
	EmergencyCount int     `json:"emergencyCount"`
}

// Accumulator folds samples into Stats. The zero value is ready to use.
type Accumulator struct {
	st       Stats
	pulseSum float64
	spo2Sum  float64
}

// Add folds s into the running aggregate.
func (a *Accumulator) Add(s Sample) {
	if a.st.Count == 0 {
		a.st.MinPulse, a.st.MaxPulse = s.PulseRate, s.PulseRate
		a.st.MinSpO2, a.st.MaxSpO2 = s.SpO2, s.SpO2
	}
	a.st.MinPulse = min(a.st.MinPulse, s.PulseRate)
	a.st.MaxPulse = max(a.st.MaxPulse, s.PulseRate)
	a.st.MinSpO2 = min(a.st.MinSpO2, s.SpO2)
	a.st.MaxSpO2 = max(a.st.MaxSpO2, s.SpO2)
	a.pulseSum += s.PulseRate
	a.spo2Sum += s.SpO2
	a.st.TotalSteps += s.Steps
	a.st.TotalCalories += s.Calories
	a.st.Count++
	if s.IsEmergency {
		a.st.EmergencyCount++
	}
}

// Stats returns the aggregate of everything added so far.
func (a *Accumulator) Stats() Stats {
	out := a.st
	if out.Count > 0 {
		out.AveragePulse = a.pulseSum / float64(out.Count)
		out.AverageSpO2 = a.spo2Sum / float64(out.Count)
	}
	return out
}

// EventHealthDataUpdate is the live event name emitted once per ingestion.
const EventHealthDataUpdate = "healthDataUpdate"

// Event is the payload fanned out to live subscribers after an ingestion
// completes. Alerts is never nil.
type Event struct {
	Sample Sample  `json:"sample"`
	Alerts []Alert `json:"alerts"`
}
