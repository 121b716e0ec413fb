package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the measurement category of a record.
type Kind uint8

const (
	KindUnknown Kind = iota
	Systolic
	Diastolic
	ECG
	Saturation
	TriggeredAlert
)

// Kinds lists every valid kind in declaration order.
var Kinds = []Kind{Systolic, Diastolic, ECG, Saturation, TriggeredAlert}

// Wire labels used by the data feeds.
var kindLabels = map[Kind]string{
	Systolic:       "SystolicPressure",
	Diastolic:      "DiastolicPressure",
	ECG:            "ECG",
	Saturation:     "Saturation",
	TriggeredAlert: "Alert",
}

// String returns the wire label of k.
func (k Kind) String() string {
	if s, ok := kindLabels[k]; ok {
		return s
	}
	return "Unknown"
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// ParseKind maps a wire label to a Kind. Matching is case-insensitive.
func ParseKind(label string) (Kind, error) {
	label = strings.TrimSpace(label)
	for k, s := range kindLabels {
		if strings.EqualFold(s, label) {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown record kind %q", label)
}

// MarshalText implements encoding.TextMarshaler so kinds render as labels in
// JSON. An unset kind renders as the empty string.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return []byte{}, nil
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string decodes
// to KindUnknown.
func (k *Kind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = KindUnknown
		return nil
	}
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Record is one validated measurement. It is passed by value and never
// mutated after construction.
type Record struct {
	PatientID int     `json:"patient_id"`
	Value     float64 `json:"value"`
	Kind      Kind    `json:"kind"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}

// FormatValue renders a measurement value without trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
