package strategy

import (
	"math"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Strategy names used by the engine's dispatch and factory tables.
const (
	NameSystolic   = "systolic"
	NameDiastolic  = "diastolic"
	NameECG        = "ecg"
	NameSaturation = "saturation"
	NameCombined   = "combined"
	NameTriggered  = "triggered"
)

// Strategy decides whether a new value constitutes an alert condition.
// Implementations are stateful and not safe for concurrent use; callers
// serialise access through the owning Set.
type Strategy interface {
	Name() string
	Check(value float64, timestamp int64) bool
}

// Observer is implemented by strategies that are fed out-of-band with the
// latest value of other kinds before Check is called.
type Observer interface {
	Observe(value float64, kind types.Kind)
}

// Trend fires on a sustained run of large same-direction changes or on any
// value outside its band.
type Trend struct {
	name  string
	band  Band
	delta float64
	runs  int

	seen bool
	last float64
	run  int
	dir  int // +1 rising, -1 falling, 0 none
}

// NewTrend returns a trend strategy with the given band.
func NewTrend(name string, band Band, th TrendThresholds) *Trend {
	return &Trend{name: name, band: band, delta: th.Delta, runs: th.Runs}
}

func (s *Trend) Name() string { return s.name }

// Check records value and reports whether the run or band condition holds.
// The first call only records the baseline.
func (s *Trend) Check(value float64, _ int64) bool {
	switch {
	case !s.seen:
		s.seen = true
	case value-s.last > s.delta:
		if s.dir != 1 {
			s.run, s.dir = 0, 1
		}
		s.run++
	case s.last-value > s.delta:
		if s.dir != -1 {
			s.run, s.dir = 0, -1
		}
		s.run++
	default:
		s.run, s.dir = 0, 0
	}
	s.last = value

	if s.run >= s.runs {
		return true
	}
	return value > s.band.Upper || value < s.band.Lower
}

// Run returns the current same-direction step count.
func (s *Trend) Run() int { return s.run }

// ECGPeak compares each reading against the running mean of a fixed window of
// preceding readings.
type ECGPeak struct {
	peak float64

	buf  []float64 // ring buffer, len == window once full
	head int       // index of the oldest value when full
	mean float64
}

// NewECGPeak returns an ECG peak detector.
func NewECGPeak(th ECGThresholds) *ECGPeak {
	return &ECGPeak{peak: th.Peak, buf: make([]float64, 0, th.Window)}
}

func (s *ECGPeak) Name() string { return NameECG }

// Check buffers value; once the window is full it evicts the oldest value,
// updates the running mean and reports whether value deviates from it by
// more than the peak threshold.
func (s *ECGPeak) Check(value float64, _ int64) bool {
	n := cap(s.buf)
	if len(s.buf) < n {
		s.buf = append(s.buf, value)
		s.mean += (value - s.mean) / float64(len(s.buf))
		return false
	}

	evicted := s.buf[s.head]
	s.buf[s.head] = value
	s.head = (s.head + 1) % n
	s.mean += (value - evicted) / float64(n)

	return math.Abs(value-s.mean) > s.peak
}

// Mean returns the current running mean.
func (s *ECGPeak) Mean() float64 { return s.mean }

// Full reports whether the window has filled.
func (s *ECGPeak) Full() bool { return len(s.buf) == cap(s.buf) }

type sample struct {
	value float64
	ts    int64
}

// Saturation tracks blood-oxygen readings over a trailing time window.
type Saturation struct {
	windowMs int64
	low      float64
	drop     float64

	samples []sample
}

// NewSaturation returns a saturation detector.
func NewSaturation(th SaturationThresholds) *Saturation {
	return &Saturation{
		windowMs: th.Window.Milliseconds(),
		low:      th.Low,
		drop:     th.Drop,
	}
}

func (s *Saturation) Name() string { return NameSaturation }

// Check appends the sample, evicts samples older than the window and reports
// a low reading or a rapid drop from the oldest retained value.
func (s *Saturation) Check(value float64, timestamp int64) bool {
	s.samples = append(s.samples, sample{value: value, ts: timestamp})

	i := 0
	for i < len(s.samples)-1 && timestamp-s.samples[i].ts > s.windowMs {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}

	if value < s.low {
		return true
	}
	return s.samples[0].value-value > s.drop
}

// Len returns the number of samples retained in the window.
func (s *Saturation) Len() int { return len(s.samples) }

// Combined fires while the last observed systolic pressure and the last
// observed saturation are both below their limits. Observed values never
// expire.
type Combined struct {
	th         CombinedThresholds
	systolic   float64
	saturation float64
}

// NewCombined returns a correlator primed with normal readings.
func NewCombined(th CombinedThresholds) *Combined {
	return &Combined{th: th, systolic: 100, saturation: 100}
}

func (s *Combined) Name() string { return NameCombined }

// Observe stores value as the latest reading of kind. Other kinds are ignored.
func (s *Combined) Observe(value float64, kind types.Kind) {
	switch kind {
	case types.Systolic:
		s.systolic = value
	case types.Saturation:
		s.saturation = value
	}
}

// Check ignores its arguments and evaluates the last observed readings.
func (s *Combined) Check(float64, int64) bool {
	return s.systolic < s.th.SystolicBelow && s.saturation < s.th.SaturationBelow
}

// Triggered passes device-raised alerts straight through; ingestion only
// forwards alerts in the triggered state.
type Triggered struct{}

func (Triggered) Name() string { return NameTriggered }

func (Triggered) Check(float64, int64) bool { return true }
