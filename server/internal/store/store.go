package store

import (
	"sort"
	"sync"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Store is the process-wide mapping of patient ID to Timeline.
// Timelines are created lazily on the first record for a patient and live
// for the lifetime of the process.
//
// The map itself is guarded by an RWMutex; each Timeline carries its own lock,
// so different patients never contend on record mutation.
type Store struct {
	mu       sync.RWMutex
	patients map[int]*Timeline
}

// New creates an empty Store.
func New() *Store {
	return &Store{patients: make(map[int]*Timeline)}
}

// AddRecord stores a measurement for patientID, creating the timeline on
// first use. Callers guarantee the tuple is already validated.
func (s *Store) AddRecord(patientID int, value float64, kind types.Kind, timestamp int64) {
	s.timeline(patientID).Insert(types.Record{
		PatientID: patientID,
		Value:     value,
		Kind:      kind,
		Timestamp: timestamp,
	})
}

// Add stores r; see AddRecord.
func (s *Store) Add(r types.Record) {
	s.timeline(r.PatientID).Insert(r)
}

// RecordsSince returns the patient's records with from <= timestamp <= to.
// An unknown patient or an inverted range yields an empty slice.
func (s *Store) RecordsSince(patientID int, from, to int64) []types.Record {
	tl, ok := s.get(patientID)
	if !ok {
		return []types.Record{}
	}
	return tl.Range(from, to)
}

// History walks the patient's records with timestamp <= upTo newest first,
// stopping early when fn returns false. fn must not call back into the store.
func (s *Store) History(patientID int, upTo int64, fn func(types.Record) bool) {
	if tl, ok := s.get(patientID); ok {
		tl.Each(upTo, fn)
	}
}

// LastRecordOfKind returns the newest record of kind for patientID.
// The boolean is false when the patient or kind has no records.
func (s *Store) LastRecordOfKind(patientID int, kind types.Kind) (types.Record, bool) {
	tl, ok := s.get(patientID)
	if !ok {
		return types.Record{}, false
	}
	return tl.LastOfKind(kind)
}

// Watermark returns the scanned watermark for patientID (0 when unknown).
func (s *Store) Watermark(patientID int) int64 {
	tl, ok := s.get(patientID)
	if !ok {
		return 0
	}
	return tl.Watermark()
}

// SetWatermark advances the scanned watermark for patientID. It never moves
// the watermark backwards. Unknown patients are ignored.
func (s *Store) SetWatermark(patientID int, ts int64) {
	if tl, ok := s.get(patientID); ok {
		tl.AdvanceWatermark(ts)
	}
}

// Patients returns all known patient IDs in ascending order.
func (s *Store) Patients() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.patients))
	for id := range s.patients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Count returns the number of patients with at least one record.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patients)
}

// Total returns the number of records held across all patients.
func (s *Store) Total() int {
	s.mu.RLock()
	tls := make([]*Timeline, 0, len(s.patients))
	for _, tl := range s.patients {
		tls = append(tls, tl)
	}
	s.mu.RUnlock()

	n := 0
	for _, tl := range tls {
		n += tl.Len()
	}
	return n
}

// Len returns the number of records held for patientID.
func (s *Store) Len(patientID int) int {
	tl, ok := s.get(patientID)
	if !ok {
		return 0
	}
	return tl.Len()
}

func (s *Store) get(patientID int) (*Timeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tl, ok := s.patients[patientID]
	return tl, ok
}

// timeline returns the patient's timeline, creating it if absent.
func (s *Store) timeline(patientID int) *Timeline {
	if tl, ok := s.get(patientID); ok {
		return tl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok := s.patients[patientID]; ok {
		return tl
	}
	tl := NewTimeline(patientID)
	s.patients[patientID] = tl
	return tl
}
