package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/alerts"
)

const (
	emergencySubject = "EMERGENCY ALERT - Critical Health Data"
	reportSubject    = "Monthly Health Report - Smart Band"
	timeLayout       = "2006-01-02 15:04:05 MST"
)

// emergencyText is the plain-text emergency body shared by email and SMS.
// Out-of-range readings are flagged with "(!)".
func emergencyText(s types.Sample, withDevice bool) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT - Critical health data detected!\n")
	fmt.Fprintf(&b, "Pulse: %s BPM%s\n", num(s.PulseRate), flag(s.PulseRate < alerts.PulseLowBPM || s.PulseRate > alerts.PulseHighBPM))
	fmt.Fprintf(&b, "SpO2: %s%%%s\n", num(s.SpO2), flag(s.SpO2 < alerts.SpO2LowPct))
	fmt.Fprintf(&b, "Time: %s\n", s.Timestamp.Format(timeLayout))
	if withDevice {
		fmt.Fprintf(&b, "Device ID: %s\n", s.DeviceID)
	}
	b.WriteString("Please check on the patient immediately!")
	return b.String()
}

// Report is the summary included in a health report message.
type Report struct {
	Period        string
	AveragePulse  float64
	AverageSpO2   float64
	TotalSteps    int64
	TotalCalories float64
	DataPoints    int
	Emergencies   int
	GeneratedAt   time.Time
}

func reportText(r Report) string {
	var b strings.Builder
	b.WriteString("Monthly Health Report\n\n")
	fmt.Fprintf(&b, "Period: %s\n\n", r.Period)
	b.WriteString("Summary\n")
	fmt.Fprintf(&b, "Average Pulse Rate: %s BPM\n", num(r.AveragePulse))
	fmt.Fprintf(&b, "Average SpO2: %s%%\n", num(r.AverageSpO2))
	fmt.Fprintf(&b, "Total Steps: %d\n", r.TotalSteps)
	fmt.Fprintf(&b, "Total Calories: %s\n", num(r.TotalCalories))
	fmt.Fprintf(&b, "Data Points: %d\n", r.DataPoints)
	fmt.Fprintf(&b, "Emergency Readings: %d\n\n", r.Emergencies)
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(timeLayout))
	}
	b.WriteString("Best regards,\nHealth Monitoring Team")
	return b.String()
}

func flag(on bool) string {
	if on {
		return " (!)"
	}
	return ""
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
