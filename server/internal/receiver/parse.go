package receiver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

var (
	// ErrMalformed is returned for lines with missing or invalid fields.
	ErrMalformed = errors.New("receiver: malformed line")

	// ErrResolved is returned for alert lines in the resolved state. They
	// carry no measurement and are not stored.
	ErrResolved = errors.New("receiver: resolved alert")
)

// ParseLine parses one labelled measurement line. Whitespace is ignored, a
// trailing "L" on the timestamp and a trailing "%" on the value are accepted.
func ParseLine(line string) (types.Record, error) {
	line = strings.Join(strings.Fields(line), "")
	if line == "" {
		return types.Record{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	var r types.Record
	var data string
	var hasID, hasTS, hasKind, hasData bool
	for _, pair := range strings.Split(line, ",") {
		if pair == "" {
			continue
		}
		key, val, found := strings.Cut(pair, ":")
		if !found {
			return types.Record{}, fmt.Errorf("%w: field %q has no value", ErrMalformed, pair)
		}
		switch key {
		case "PatientID":
			id, err := strconv.Atoi(val)
			if err != nil || id <= 0 {
				return types.Record{}, fmt.Errorf("%w: patient id %q", ErrMalformed, val)
			}
			r.PatientID, hasID = id, true
		case "Timestamp":
			ts, err := strconv.ParseInt(strings.TrimSuffix(val, "L"), 10, 64)
			if err != nil || ts <= 0 {
				return types.Record{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, val)
			}
			r.Timestamp, hasTS = ts, true
		case "Label":
			k, err := types.ParseKind(val)
			if err != nil {
				return types.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			r.Kind, hasKind = k, true
		case "Data":
			data, hasData = val, true
		default:
			return types.Record{}, fmt.Errorf("%w: unknown field %q", ErrMalformed, key)
		}
	}

	switch {
	case !hasID:
		return types.Record{}, fmt.Errorf("%w: missing patient id", ErrMalformed)
	case !hasTS:
		return types.Record{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	case !hasKind:
		return types.Record{}, fmt.Errorf("%w: missing label", ErrMalformed)
	case !hasData:
		return types.Record{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}

	if r.Kind == types.TriggeredAlert {
		switch strings.ToLower(data) {
		case "triggered":
			r.Value = 0
			return r, nil
		case "resolved":
			return types.Record{}, ErrResolved
		default:
			return types.Record{}, fmt.Errorf("%w: alert state %q", ErrMalformed, data)
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(data, "%"), 64)
	if err != nil {
		return types.Record{}, fmt.Errorf("%w: value %q", ErrMalformed, data)
	}
	r.Value = v
	return r, nil
}
