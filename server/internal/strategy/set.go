package strategy

import (
	"sync"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Set is one patient's collection of strategy instances.
//
// Callers must hold the Set's lock (Lock/Unlock) around Reset, Get and any
// Check or Observe on a strategy obtained from it.
type Set struct {
	mu         sync.Mutex
	patientID  int
	strategies map[string]Strategy
}

// NewSet builds a fresh strategy set for patientID.
func NewSet(patientID int, th Thresholds) *Set {
	return &Set{patientID: patientID, strategies: build(th)}
}

// Lock acquires exclusive access to the set's strategies.
func (s *Set) Lock() { s.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (s *Set) Unlock() { s.mu.Unlock() }

// PatientID returns the owning patient.
func (s *Set) PatientID() int { return s.patientID }

// Reset discards all strategy state and rebuilds the strategies from th.
func (s *Set) Reset(th Thresholds) {
	s.strategies = build(th)
}

// Get returns the strategy registered under name.
func (s *Set) Get(name string) (Strategy, bool) {
	st, ok := s.strategies[name]
	return st, ok
}

// Names returns the names of every strategy in the set.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		out = append(out, name)
	}
	return out
}

// Feed observes and checks value with the named strategy and returns the
// Check outcome. Unknown names return false.
func (s *Set) Feed(name string, r types.Record) bool {
	st, ok := s.strategies[name]
	if !ok {
		return false
	}
	if obs, ok := st.(Observer); ok {
		obs.Observe(r.Value, r.Kind)
	}
	return st.Check(r.Value, r.Timestamp)
}

func build(th Thresholds) map[string]Strategy {
	return map[string]Strategy{
		NameSystolic:   NewTrend(NameSystolic, th.Systolic, th.Trend),
		NameDiastolic:  NewTrend(NameDiastolic, th.Diastolic, th.Trend),
		NameECG:        NewECGPeak(th.ECG),
		NameSaturation: NewSaturation(th.Saturation),
		NameCombined:   NewCombined(th.Combined),
		NameTriggered:  Triggered{},
	}
}

// Registry hands out one Set per patient, creating it on first use.
// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	th   Thresholds
	sets map[int]*Set
}

// NewRegistry returns an empty registry that builds sets from th.
func NewRegistry(th Thresholds) *Registry {
	return &Registry{th: th, sets: make(map[int]*Set)}
}

// For returns the patient's set.
func (r *Registry) For(patientID int) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sets[patientID]; ok {
		return s
	}
	s := NewSet(patientID, r.th)
	r.sets[patientID] = s
	return s
}

// Thresholds returns the thresholds new and reset sets are built from.
func (r *Registry) Thresholds() Thresholds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.th
}

// SetThresholds replaces the thresholds. Existing sets pick them up on their
// next Reset.
func (r *Registry) SetThresholds(th Thresholds) {
	r.mu.Lock()
	r.th = th
	r.mu.Unlock()
}

// Forget drops the patient's set.
func (r *Registry) Forget(patientID int) {
	r.mu.Lock()
	delete(r.sets, patientID)
	r.mu.Unlock()
}

// Len returns the number of patients with a set.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}
