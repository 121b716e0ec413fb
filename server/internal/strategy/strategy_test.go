package strategy

import (
	"testing"
	"time"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

var th = DefaultThresholds()

// feed runs values through s at 10ms steps and returns the Check outcomes.
func feed(s Strategy, values ...float64) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = s.Check(v, int64(i+1)*10)
	}
	return out
}

// --- Trend ---

func TestTrend_RisingRunFiresOnThirdStep(t *testing.T) {
	s := NewTrend(NameSystolic, th.Systolic, th.Trend)
	got := feed(s, 100, 100, 115, 130, 145)
	want := []bool{false, false, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestTrend_FirstCallNeverTrends(t *testing.T) {
	s := NewTrend(NameSystolic, th.Systolic, TrendThresholds{Delta: 10, Runs: 1})
	if s.Check(150, 1) {
		t.Error("first call fired")
	}
	if !s.Check(165, 2) {
		t.Error("second call with +15 step and runs=1 should fire")
	}
}

func TestTrend_DirectionChangeResetsRun(t *testing.T) {
	s := NewTrend(NameSystolic, th.Systolic, th.Trend)
	feed(s, 100, 115, 130)
	if s.Run() != 2 {
		t.Fatalf("Run after two rises: got %d, want 2", s.Run())
	}
	s.Check(110, 100) // falling step
	if s.Run() != 1 {
		t.Errorf("Run after direction change: got %d, want 1", s.Run())
	}
	s.Check(105, 110) // small step
	if s.Run() != 0 {
		t.Errorf("Run after small delta: got %d, want 0", s.Run())
	}
}

func TestTrend_DeltaAtThresholdDoesNotCount(t *testing.T) {
	s := NewTrend(NameSystolic, th.Systolic, th.Trend)
	got := feed(s, 100, 110, 120, 130, 140)
	for i, fired := range got {
		if fired {
			t.Errorf("step %d fired with delta exactly 10", i)
		}
	}
}

func TestTrend_BandLimits(t *testing.T) {
	cases := []struct {
		name  string
		band  Band
		value float64
		want  bool
	}{
		{"systolic high", th.Systolic, 181, true},
		{"systolic low", th.Systolic, 89, true},
		{"systolic edge", th.Systolic, 180, false},
		{"diastolic high", th.Diastolic, 121, true},
		{"diastolic low", th.Diastolic, 59, true},
		{"diastolic normal", th.Diastolic, 80, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewTrend("bp", tc.band, th.Trend)
			if got := s.Check(tc.value, 1); got != tc.want {
				t.Errorf("Check(%v): got %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

// --- ECG ---

func TestECGPeak_NoTriggerWhileFilling(t *testing.T) {
	s := NewECGPeak(th.ECG)
	for i, fired := range feed(s, 0, 500, -500, 1000, 3) {
		if fired {
			t.Errorf("value %d fired before the window filled", i)
		}
	}
	if !s.Full() {
		t.Error("window should be full after 5 values")
	}
}

func TestECGPeak_PeakAfterSteadyWindow(t *testing.T) {
	s := NewECGPeak(th.ECG)
	feed(s, 100, 100, 100, 100, 100)
	if s.Mean() != 100 {
		t.Fatalf("Mean after steady window: got %v, want 100", s.Mean())
	}
	if !s.Check(200, 60) {
		t.Error("200 after steady 100s should fire")
	}
}

func TestECGPeak_SteadySignalDoesNotFire(t *testing.T) {
	s := NewECGPeak(th.ECG)
	for i, fired := range feed(s, 100, 102, 98, 101, 99, 100, 103, 97, 100) {
		if fired {
			t.Errorf("value %d fired on a steady signal", i)
		}
	}
}

func TestECGPeak_FIFOEviction(t *testing.T) {
	s := NewECGPeak(ECGThresholds{Window: 2, Peak: 1000})
	feed(s, 10, 20)
	s.Check(30, 30) // evicts 10 -> window {20, 30}
	if s.Mean() != 25 {
		t.Errorf("Mean: got %v, want 25", s.Mean())
	}
	s.Check(40, 40) // evicts 20 -> window {30, 40}
	if s.Mean() != 35 {
		t.Errorf("Mean: got %v, want 35", s.Mean())
	}
}

// --- Saturation ---

func TestSaturation_LowAndRapidDrop(t *testing.T) {
	s := NewSaturation(th.Saturation)
	if s.Check(98, 1_000) {
		t.Error("98 should not fire")
	}
	if !s.Check(91, 2_000) {
		t.Error("91 after 98 should fire")
	}

	// Rapid drop alone, above the low limit.
	s = NewSaturation(th.Saturation)
	s.Check(99, 1_000)
	if !s.Check(93, 2_000) {
		t.Error("drop of 6 within window should fire")
	}
}

func TestSaturation_WindowEviction(t *testing.T) {
	s := NewSaturation(th.Saturation)
	window := th.Saturation.Window.Milliseconds()
	s.Check(99, 0)
	// Same drop, but the old sample falls out of the window first.
	if s.Check(93, window+1) {
		t.Error("drop against an evicted sample should not fire")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestSaturation_SampleAtWindowEdgeRetained(t *testing.T) {
	s := NewSaturation(SaturationThresholds{Window: time.Second, Low: 92, Drop: 5})
	s.Check(99, 0)
	if !s.Check(93, 1000) {
		t.Error("sample exactly one window old should still be compared")
	}
}

// --- Combined ---

func TestCombined_BothLow(t *testing.T) {
	s := NewCombined(th.Combined)
	s.Observe(85, types.Systolic)
	if s.Check(85, 1) {
		t.Error("systolic alone should not fire")
	}
	s.Observe(90, types.Saturation)
	if !s.Check(90, 2) {
		t.Error("systolic 85 and saturation 90 should fire")
	}
	s.Observe(95, types.Saturation)
	if s.Check(95, 3) {
		t.Error("recovered saturation should clear the condition")
	}
}

func TestCombined_IgnoresOtherKinds(t *testing.T) {
	s := NewCombined(th.Combined)
	s.Observe(10, types.ECG)
	s.Observe(10, types.Diastolic)
	if s.Check(0, 1) {
		t.Error("non-correlated kinds changed the outcome")
	}
}

func TestTriggered_AlwaysFires(t *testing.T) {
	if !(Triggered{}).Check(0, 0) {
		t.Error("Triggered must always fire")
	}
}

// --- Set / Registry ---

func TestSet_FeedObservesBeforeCheck(t *testing.T) {
	set := NewSet(1, th)
	set.Lock()
	defer set.Unlock()

	set.Feed(NameCombined, types.Record{Kind: types.Systolic, Value: 80})
	if !set.Feed(NameCombined, types.Record{Kind: types.Saturation, Value: 85}) {
		t.Error("combined should fire once both low values were fed")
	}
	if set.Feed("nope", types.Record{}) {
		t.Error("unknown strategy name should return false")
	}
}

func TestSet_ResetClearsState(t *testing.T) {
	set := NewSet(1, th)
	set.Lock()
	defer set.Unlock()

	for i := 0; i < 5; i++ {
		set.Feed(NameECG, types.Record{Kind: types.ECG, Value: 100})
	}
	set.Reset(th)
	st, _ := set.Get(NameECG)
	if st.(*ECGPeak).Full() {
		t.Error("Reset did not clear ECG window")
	}
}

func TestRegistry_PerPatientIsolation(t *testing.T) {
	reg := NewRegistry(th)
	a, b := reg.For(1), reg.For(2)
	if a == b {
		t.Fatal("patients share a strategy set")
	}
	if reg.For(1) != a {
		t.Error("For is not stable for the same patient")
	}

	a.Lock()
	a.Feed(NameCombined, types.Record{Kind: types.Systolic, Value: 80})
	a.Unlock()

	b.Lock()
	fired := b.Feed(NameCombined, types.Record{Kind: types.Saturation, Value: 85})
	b.Unlock()
	if fired {
		t.Error("patient 2 saw patient 1's systolic reading")
	}

	reg.Forget(1)
	if reg.Len() != 1 {
		t.Errorf("Len after Forget: got %d, want 1", reg.Len())
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultThresholds()
	bad.ECG.Window = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero ECG window")
	}
	bad = DefaultThresholds()
	bad.Systolic = Band{Lower: 200, Upper: 100}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted band")
	}
}
