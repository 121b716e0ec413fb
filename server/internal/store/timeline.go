package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Timeline is the ordered record history of one patient together with the
// scanned watermark used by the alert engine.
//
// Records are kept sorted by timestamp; among equal timestamps at most one
// record per kind exists. Timeline is safe for concurrent use.
type Timeline struct {
	mu          sync.RWMutex
	patientID   int
	records     []types.Record
	scannedUpTo int64
}

// NewTimeline returns an empty timeline for patientID.
func NewTimeline(patientID int) *Timeline {
	return &Timeline{patientID: patientID}
}

// PatientID returns the patient this timeline belongs to.
func (t *Timeline) PatientID() int { return t.patientID }

// Insert adds r to the timeline. A record with the same (timestamp, kind)
// is replaced in place; otherwise r is placed after any records sharing its
// timestamp so ascending order is preserved.
func (t *Timeline) Insert(r types.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.records)
	if n == 0 || t.records[n-1].Timestamp < r.Timestamp {
		t.records = append(t.records, r)
		return
	}

	lo := t.lowerBound(r.Timestamp)
	hi := t.upperBound(r.Timestamp)
	for i := lo; i < hi; i++ {
		if t.records[i].Kind == r.Kind {
			t.records[i] = r
			return
		}
	}

	t.records = append(t.records, types.Record{})
	copy(t.records[hi+1:], t.records[hi:])
	t.records[hi] = r

	t.verify()
}

// Range returns a copy of all records with start <= timestamp <= end in
// ascending order. start > end yields an empty slice.
func (t *Timeline) Range(start, end int64) []types.Record {
	if start > end {
		return []types.Record{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	lo := t.lowerBound(start)
	hi := t.upperBound(end)
	if lo >= hi {
		return []types.Record{}
	}
	out := make([]types.Record, hi-lo)
	copy(out, t.records[lo:hi])
	return out
}

// Each calls fn for every record with timestamp <= upTo, newest first,
// until fn returns false. fn runs under the read lock and must not call
// back into the timeline.
func (t *Timeline) Each(upTo int64, fn func(types.Record) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := t.upperBound(upTo) - 1; i >= 0; i-- {
		if !fn(t.records[i]) {
			return
		}
	}
}

// LastOfKind returns the newest record of kind, if any.
func (t *Timeline) LastOfKind(kind types.Kind) (types.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.records) - 1; i >= 0; i-- {
		if t.records[i].Kind == kind {
			return t.records[i], true
		}
	}
	return types.Record{}, false
}

// Len returns the number of records held.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Watermark returns the scanned-up-to timestamp.
func (t *Timeline) Watermark() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scannedUpTo
}

// AdvanceWatermark moves the watermark forward to ts. It never moves back.
func (t *Timeline) AdvanceWatermark(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts > t.scannedUpTo {
		t.scannedUpTo = ts
	}
}

// lowerBound returns the index of the first record with timestamp >= ts.
func (t *Timeline) lowerBound(ts int64) int {
	return sort.Search(len(t.records), func(i int) bool {
		return t.records[i].Timestamp >= ts
	})
}

// upperBound returns the index of the first record with timestamp > ts.
func (t *Timeline) upperBound(ts int64) int {
	return sort.Search(len(t.records), func(i int) bool {
		return t.records[i].Timestamp > ts
	})
}

// verify checks the ordering invariant after an out-of-band insert. Debug
// builds panic; release builds log and restore order.
func (t *Timeline) verify() {
	for i := 1; i < len(t.records); i++ {
		if t.records[i-1].Timestamp > t.records[i].Timestamp {
			if debugInvariants {
				panic("store: timeline out of order")
			}
			slog.Error("store: timeline out of order, re-sorting",
				"patient", t.patientID, "index", i)
			sort.SliceStable(t.records, func(a, b int) bool {
				return t.records[a].Timestamp < t.records[b].Timestamp
			})
			return
		}
	}
}
