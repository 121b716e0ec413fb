package alerts

import (
	"github.com/vitalwatch/vitalwatch/pkg/types"
	"github.com/vitalwatch/vitalwatch/server/internal/strategy"
)

// Factory builds the alert payload for a positive detection.
// condition is "<kind>=<value>", e.g. "ECG=133.2".
type Factory func(patientID, condition string, timestamp int64) Alert

func labelled(label string) Factory {
	return func(patientID, condition string, timestamp int64) Alert {
		return Alert{
			PatientID: patientID,
			Condition: label + " -> " + condition,
			Timestamp: timestamp,
		}
	}
}

// Alert factories per signal family.
var (
	BloodPressureFactory = labelled("BloodPressureAlert")
	ECGFactory           = labelled("ECGAlert")
	BloodOxygenFactory   = labelled("BloodOxygenAlert")
	CombinedFactory      = labelled("CombinedAlert")
)

// GenericFactory is the fallback for strategies without a dedicated factory.
func GenericFactory(patientID, condition string, timestamp int64) Alert {
	return Alert{PatientID: patientID, Condition: condition, Timestamp: timestamp}
}

// DefaultFactories maps every built-in strategy to its factory.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		strategy.NameSystolic:   BloodPressureFactory,
		strategy.NameDiastolic:  BloodPressureFactory,
		strategy.NameECG:        ECGFactory,
		strategy.NameSaturation: BloodOxygenFactory,
		strategy.NameCombined:   CombinedFactory,
		strategy.NameTriggered:  GenericFactory,
	}
}

// DefaultDispatch maps each kind to the strategies evaluated for it.
// A kind may feed more than one strategy.
func DefaultDispatch() map[types.Kind][]string {
	return map[types.Kind][]string{
		types.Systolic:       {strategy.NameSystolic, strategy.NameCombined},
		types.Diastolic:      {strategy.NameDiastolic},
		types.ECG:            {strategy.NameECG},
		types.Saturation:     {strategy.NameSaturation, strategy.NameCombined},
		types.TriggeredAlert: {strategy.NameTriggered},
	}
}

func condition(r types.Record) string {
	return r.Kind.String() + "=" + types.FormatValue(r.Value)
}
