package strategy

import (
	"fmt"
	"time"
)

// Band is an inclusive normal range; values outside it are critical.
type Band struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// TrendThresholds controls the consecutive-change detector shared by the
// blood-pressure strategies.
type TrendThresholds struct {
	// Delta is the minimum change between consecutive readings that counts
	// as a step.
	Delta float64 `yaml:"delta"`

	// Runs is the number of consecutive same-direction steps that fires.
	Runs int `yaml:"runs"`
}

// ECGThresholds controls the ECG peak detector.
type ECGThresholds struct {
	Window int     `yaml:"window"`
	Peak   float64 `yaml:"peak"`
}

// SaturationThresholds controls the blood-oxygen detector.
type SaturationThresholds struct {
	Window time.Duration `yaml:"window"`
	Low    float64       `yaml:"low"`
	Drop   float64       `yaml:"drop"`
}

// CombinedThresholds controls the systolic+saturation correlator.
type CombinedThresholds struct {
	SystolicBelow   float64 `yaml:"systolic_below"`
	SaturationBelow float64 `yaml:"saturation_below"`
}

// Thresholds groups every tunable constant of the detection strategies.
type Thresholds struct {
	Systolic   Band                 `yaml:"systolic"`
	Diastolic  Band                 `yaml:"diastolic"`
	Trend      TrendThresholds      `yaml:"trend"`
	ECG        ECGThresholds        `yaml:"ecg"`
	Saturation SaturationThresholds `yaml:"saturation"`
	Combined   CombinedThresholds   `yaml:"combined"`
}

// DefaultThresholds returns the clinical defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Systolic:   Band{Lower: 90, Upper: 180},
		Diastolic:  Band{Lower: 60, Upper: 120},
		Trend:      TrendThresholds{Delta: 10, Runs: 3},
		ECG:        ECGThresholds{Window: 5, Peak: 30},
		Saturation: SaturationThresholds{Window: 10 * time.Minute, Low: 92, Drop: 5},
		Combined:   CombinedThresholds{SystolicBelow: 90, SaturationBelow: 92},
	}
}

// Validate checks structural constraints.
func (t Thresholds) Validate() error {
	if t.Systolic.Lower > t.Systolic.Upper {
		return fmt.Errorf("systolic band lower %.1f exceeds upper %.1f", t.Systolic.Lower, t.Systolic.Upper)
	}
	if t.Diastolic.Lower > t.Diastolic.Upper {
		return fmt.Errorf("diastolic band lower %.1f exceeds upper %.1f", t.Diastolic.Lower, t.Diastolic.Upper)
	}
	if t.Trend.Runs <= 0 {
		return fmt.Errorf("trend.runs must be positive")
	}
	if t.Trend.Delta < 0 {
		return fmt.Errorf("trend.delta must not be negative")
	}
	if t.ECG.Window <= 0 {
		return fmt.Errorf("ecg.window must be positive")
	}
	if t.Saturation.Window <= 0 {
		return fmt.Errorf("saturation.window must be positive")
	}
	return nil
}
