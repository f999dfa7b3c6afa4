package types

import (
	"fmt"
	"time"
)

// AlertKind is the closed set of alert types the evaluator can raise.
type AlertKind uint8

const (
	KindPulseLow AlertKind = iota + 1
	KindPulseHigh
	KindSpO2Low
	KindEmergency
)

// AlertKinds lists every valid AlertKind in evaluation order.
var AlertKinds = []AlertKind{KindPulseLow, KindPulseHigh, KindSpO2Low, KindEmergency}

func (k AlertKind) String() string {
	switch k {
	case KindPulseLow:
		return "pulse_low"
	case KindPulseHigh:
		return "pulse_high"
	case KindSpO2Low:
		return "spo2_low"
	case KindEmergency:
		return "emergency"
	}
	return fmt.Sprintf("AlertKind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k AlertKind) Valid() bool {
	return k >= KindPulseLow && k <= KindEmergency
}

// MarshalText implements encoding.TextMarshaler.
func (k AlertKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("types: invalid alert kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AlertKind) UnmarshalText(b []byte) error {
	v, err := ParseAlertKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseAlertKind maps the wire name back to an AlertKind.
func ParseAlertKind(s string) (AlertKind, error) {
	for _, k := range AlertKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("types: unknown alert kind %q", s)
}

// Severity is the closed set of alert severities.
type Severity uint8

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("types: invalid severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity maps the wire name back to a Severity.
func ParseSeverity(str string) (Severity, error) {
	for _, s := range severities {
		if s.String() == str {
			return s, nil
		}
	}
	return 0, fmt.Errorf("types: unknown severity %q", str)
}

// AlertDraft is an alert candidate produced by evaluation, before it is
// persisted.
type AlertDraft struct {
	Kind     AlertKind `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Alert is a persisted alert raised by exactly one sample. Read and Resolved
// only ever go from false to true.
type Alert struct {
	ID        string          `json:"id"`
	Kind      AlertKind       `json:"type"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	SampleID  string          `json:"sampleId"`
	Sample    *Sample         `json:"sample,omitempty"`
	Read      bool            `json:"isRead"`
	Resolved  bool            `json:"isResolved"`
	Notified  map[string]bool `json:"notificationSent"`
	CreatedAt time.Time       `json:"createdAt"`
}
