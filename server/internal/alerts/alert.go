package alerts

import (
	"fmt"
	"time"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Variant tags how an alert was decorated before emission.
type Variant uint8

const (
	// Plain is an undecorated alert.
	Plain Variant = iota
	// Priority is an escalated alert.
	Priority
	// Repeated is an alert bound to its strategy for scheduled rechecks.
	// Occurrence 0 is the initial emission; 1..Rechecks are confirmations.
	Repeated
)

func (v Variant) String() string {
	switch v {
	case Priority:
		return "priority"
	case Repeated:
		return "repeated"
	default:
		return "plain"
	}
}

// MarshalText renders the variant by name in JSON payloads.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a variant name.
func (v *Variant) UnmarshalText(b []byte) error {
	switch string(b) {
	case "plain":
		*v = Plain
	case "priority":
		*v = Priority
	case "repeated":
		*v = Repeated
	default:
		return fmt.Errorf("alerts: unknown variant %q", b)
	}
	return nil
}

// Alert is one alert event. Values are immutable once built; decorations
// produce modified copies via As.
type Alert struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Condition string     `json:"condition"`
	Timestamp int64      `json:"timestamp"` // timestamp of the triggering record
	Kind      types.Kind `json:"kind"`
	Strategy  string     `json:"strategy"`
	Variant   Variant    `json:"variant"`

	// Occurrence and Rechecks are set on Repeated alerts only.
	Occurrence int `json:"occurrence,omitempty"`
	Rechecks   int `json:"rechecks,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// As returns a copy of a tagged with v.
func (a Alert) As(v Variant) Alert {
	a.Variant = v
	return a
}

// IsConfirmation reports whether a is a positive recheck of an earlier alert.
func (a Alert) IsConfirmation() bool {
	return a.Variant == Repeated && a.Occurrence > 0
}

// Severity maps the variant to the severity used by notification targets.
func (a Alert) Severity() string {
	switch {
	case a.Variant == Priority:
		return "critical"
	case a.IsConfirmation():
		return "info"
	default:
		return "warning"
	}
}

func (a Alert) base() string {
	return fmt.Sprintf("patientId=%s, condition:%s, timestamp=%d", a.PatientID, a.Condition, a.Timestamp)
}

// String renders the alert the way the console sink prints it.
func (a Alert) String() string {
	switch a.Variant {
	case Priority:
		return "PRIORITY Alert: [" + a.base() + "]"
	case Repeated:
		if a.Occurrence > 0 {
			return fmt.Sprintf("REPEATED Alert: [%s], repeated (%d/%d)", a.base(), a.Occurrence, a.Rechecks)
		}
		return "REPEATED Alert: [" + a.base() + "]"
	default:
		return a.base()
	}
}
