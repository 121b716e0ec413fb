// Package strategy implements the stateful detection strategies the alert
// engine runs over each patient's records: blood-pressure trend/band checks,
// the ECG peak detector, the saturation low/rapid-drop detector, the
// cross-signal systolic+saturation correlator and the pass-through strategy
// for device-triggered alerts.
//
// Strategy state is per patient: a Registry hands out one Set per patient,
// and the Set's mutex serialises live evaluation with scheduled rechecks.
package strategy
