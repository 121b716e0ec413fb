package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitalwatch/vitalwatch/pkg/types"
	"github.com/vitalwatch/vitalwatch/server/internal/config"
	"github.com/vitalwatch/vitalwatch/server/internal/strategy"
)

// Source is the read side of the patient store plus the watermark cursor the
// engine advances. *store.Store satisfies it.
type Source interface {
	RecordsSince(patientID int, from, to int64) []types.Record
	History(patientID int, upTo int64, fn func(types.Record) bool)
	LastRecordOfKind(patientID int, kind types.Kind) (types.Record, bool)
	Watermark(patientID int) int64
	SetWatermark(patientID int, ts int64)
	Patients() []int
}

// Option customises an Engine.
type Option func(*Engine)

// WithDispatch replaces the kind to strategy-name table.
func WithDispatch(d map[types.Kind][]string) Option {
	return func(e *Engine) { e.dispatch = d }
}

// WithFactories replaces the strategy-name to factory table.
func WithFactories(f map[string]Factory) Option {
	return func(e *Engine) { e.factories = f }
}

// WithClock overrides the wall clock used to stamp EmittedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides the alert ID generator.
func WithIDs(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// policy is the escalation configuration in effect. Maps are replaced on
// Reload and never mutated, so a copy of the struct is safe to read unlocked.
type policy struct {
	priority map[string]bool
	repeat   map[string]bool
	delays   []time.Duration
}

func newPolicy(esc config.EscalationConfig) policy {
	p := policy{
		priority: make(map[string]bool, len(esc.Priority)),
		repeat:   make(map[string]bool, len(esc.Repeat)),
		delays:   append([]time.Duration(nil), esc.RecheckDelays...),
	}
	for _, n := range esc.Priority {
		p.priority[n] = true
	}
	for _, n := range esc.Repeat {
		p.repeat[n] = true
	}
	return p
}

// Engine pulls new records from a Source, runs them through each patient's
// strategy set and emits decorated alerts to a Sink.
//
// Evaluation of one patient is serialised on that patient's strategy set;
// different patients evaluate independently. Engine is safe for concurrent use.
type Engine struct {
	src       Source
	sink      Sink
	registry  *strategy.Registry
	dispatch  map[types.Kind][]string
	factories map[string]Factory
	now       func() time.Time
	newID     func() string

	mu          sync.Mutex
	pol         policy
	history     []Alert // oldest first
	historySize int
	scopes      map[int]*scope // per-patient recheck cancellation
	edges       map[int]edge   // kinds already scanned at each watermark
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats counters
}

// New builds an Engine. Every strategy named by the dispatch table must exist
// and have a factory; a gap is a configuration error.
func New(src Source, sink Sink, cfg config.AlertsConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("alerts: %w", err)
	}
	if sink == nil {
		sink = func(Alert) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		src:         src,
		sink:        sink,
		registry:    strategy.NewRegistry(cfg.Thresholds),
		dispatch:    DefaultDispatch(),
		factories:   DefaultFactories(),
		now:         time.Now,
		newID:       uuid.NewString,
		pol:         newPolicy(cfg.Escalation),
		historySize: cfg.HistorySize,
		scopes:      make(map[int]*scope),
		edges:       make(map[int]edge),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}

	probe := strategy.NewSet(0, cfg.Thresholds)
	for kind, names := range e.dispatch {
		for _, name := range names {
			if _, ok := probe.Get(name); !ok {
				cancel()
				return nil, fmt.Errorf("alerts: kind %s dispatches to unknown strategy %q", kind, name)
			}
			if _, ok := e.factories[name]; !ok {
				cancel()
				return nil, fmt.Errorf("alerts: no factory registered for strategy %q", name)
			}
		}
	}
	return e, nil
}

// edge records which kinds were scanned at the watermark timestamp, so a
// record arriving later for that same instant is still evaluated once.
type edge struct {
	ts    int64
	kinds map[types.Kind]bool
}

// scanned reports whether r was passed through detection by an earlier cycle.
// Without an edge for the watermark every record at it counts as scanned.
func (g edge) scanned(r types.Record, wm int64) bool {
	switch {
	case r.Timestamp < wm:
		return true
	case r.Timestamp > wm:
		return false
	case g.kinds == nil || g.ts != wm:
		return true
	}
	return g.kinds[r.Kind]
}

func (e *Engine) edgeFor(patientID int) edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edges[patientID]
}

// advance moves the watermark to the newest scanned record and remembers the
// kinds scanned at that timestamp.
func (e *Engine) advance(patientID int, prev edge, scanned []types.Record) {
	last := scanned[len(scanned)-1].Timestamp
	next := edge{ts: last, kinds: make(map[types.Kind]bool)}
	if prev.ts == last {
		for k := range prev.kinds {
			next.kinds[k] = true
		}
	}
	for i := len(scanned) - 1; i >= 0 && scanned[i].Timestamp == last; i-- {
		next.kinds[scanned[i].Kind] = true
	}

	e.src.SetWatermark(patientID, last)
	e.mu.Lock()
	e.edges[patientID] = next
	e.mu.Unlock()
}

// Evaluate scans the patient's records not yet passed through detection,
// emits an alert for every positive detection and advances the watermark.
// Records at the watermark timestamp are scanned too, unless their kind was
// already scanned there. It returns the alerts emitted by this call;
// confirmations from scheduled rechecks are delivered to the sink later.
func (e *Engine) Evaluate(patientID int) []Alert {
	set := e.registry.For(patientID)
	pol := e.policy()

	set.Lock()
	wm := e.src.Watermark(patientID)
	prev := e.edgeFor(patientID)
	var fresh []types.Record
	for _, r := range e.src.RecordsSince(patientID, wm, math.MaxInt64) {
		if !prev.scanned(r, wm) {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		set.Unlock()
		return nil
	}

	primed := e.prime(set, patientID, wm, func(r types.Record) bool { return prev.scanned(r, wm) })
	e.stats.primed.Add(int64(primed))

	var (
		out      []Alert
		rechecks []recheck
		pid      = strconv.Itoa(patientID)
	)
	for _, r := range fresh {
		if _, ok := e.dispatch[r.Kind]; !ok {
			slog.Warn("alerts: no strategy registered for kind, skipping",
				"patient", patientID, "kind", r.Kind, "timestamp", r.Timestamp)
			e.stats.skipped.Add(1)
			continue
		}
		e.stats.evaluated.Add(1)
		for _, name := range e.feed(set, r) {
			a := e.factories[name](pid, condition(r), r.Timestamp)
			a.ID = e.newID()
			a.Kind = r.Kind
			a.Strategy = name
			a.EmittedAt = e.now()

			decorated, rc := decorate(a, pol)
			out = append(out, decorated...)
			if rc {
				rechecks = append(rechecks, recheck{patientID: patientID, alert: a, delays: pol.delays})
			}
		}
	}
	e.advance(patientID, prev, fresh)
	set.Unlock()

	for _, a := range out {
		e.emit(a)
	}
	for _, rc := range rechecks {
		e.schedule(rc)
	}
	return out
}

// decorate applies the escalation policy to a and reports whether rechecks
// should be scheduled.
func decorate(a Alert, pol policy) ([]Alert, bool) {
	prio, rep := pol.priority[a.Strategy], pol.repeat[a.Strategy]
	if !prio && !rep {
		return []Alert{a.As(Plain)}, false
	}
	var out []Alert
	if prio {
		out = append(out, a.As(Priority))
	}
	if rep {
		r := a.As(Repeated)
		r.Rechecks = len(pol.delays)
		out = append(out, r)
	}
	return out, rep && len(pol.delays) > 0
}

// prime rebuilds the patient's strategies and warms them with already-scanned
// records, oldest first, without emitting. Only the history each strategy
// needs is replayed: the last Trend.Runs readings of each pressure kind, the
// last ECG.Window ECG readings and the saturation readings inside the window
// ending at the newest one. Records for which scanned reports false are left
// to the scan.
func (e *Engine) prime(set *strategy.Set, patientID int, upTo int64, scanned func(types.Record) bool) int {
	th := e.registry.Thresholds()
	set.Reset(th)
	if upTo <= 0 {
		return 0
	}

	need := map[types.Kind]int{
		types.Systolic:  th.Trend.Runs,
		types.Diastolic: th.Trend.Runs,
		types.ECG:       th.ECG.Window,
	}
	for k := range need {
		if _, ok := e.src.LastRecordOfKind(patientID, k); !ok {
			need[k] = 0
		}
	}
	window := th.Saturation.Window.Milliseconds()
	_, hasSat := e.src.LastRecordOfKind(patientID, types.Saturation)

	var (
		picked  []types.Record
		seen    = make(map[types.Kind]int, len(need))
		satSeen bool
		satFrom int64
		satDone = !hasSat
	)
	satisfied := func() bool {
		for k, n := range need {
			if seen[k] < n {
				return false
			}
		}
		return satDone
	}

	e.src.History(patientID, upTo, func(r types.Record) bool {
		if !scanned(r) {
			return true
		}
		if satSeen && r.Timestamp < satFrom {
			satDone = true
		}
		switch r.Kind {
		case types.Saturation:
			if !satSeen {
				satSeen, satFrom = true, r.Timestamp-window
			}
			if !satDone {
				picked = append(picked, r)
			}
		case types.Systolic, types.Diastolic, types.ECG:
			if seen[r.Kind] < need[r.Kind] {
				seen[r.Kind]++
				picked = append(picked, r)
			}
		}
		return !satisfied()
	})

	for i := len(picked) - 1; i >= 0; i-- {
		e.feed(set, picked[i])
	}
	return len(picked)
}

// feed dispatches r to every strategy registered for its kind and returns the
// names of those that fired. The caller holds the set's lock.
func (e *Engine) feed(set *strategy.Set, r types.Record) []string {
	var fired []string
	for _, name := range e.dispatch[r.Kind] {
		if set.Feed(name, r) {
			fired = append(fired, name)
		}
	}
	return fired
}

func (e *Engine) emit(a Alert) {
	e.mu.Lock()
	if e.historySize > 0 {
		e.history = append(e.history, a)
		if len(e.history) > e.historySize {
			e.history = e.history[len(e.history)-e.historySize:]
		}
	}
	e.mu.Unlock()

	e.stats.count(a)
	slog.Debug("alerts: emitted",
		"id", a.ID,
		"patient", a.PatientID,
		"strategy", a.Strategy,
		"variant", a.Variant,
		"occurrence", a.Occurrence,
	)
	e.sink(a)
}

// Run evaluates every known patient each interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Cycle()
		}
	}
}

// Cycle evaluates every known patient once and returns the number of alerts
// emitted.
func (e *Engine) Cycle() int {
	n := 0
	for _, pid := range e.src.Patients() {
		n += len(e.Evaluate(pid))
	}
	e.stats.cycles.Add(1)
	return n
}

// Recent returns up to the configured history size of emitted alerts, newest
// first.
func (e *Engine) Recent() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.history))
	for i, a := range e.history {
		out[len(e.history)-1-i] = a
	}
	return out
}

// Reload swaps in new thresholds and escalation settings. Strategy state is
// rebuilt from the new thresholds on each patient's next evaluation.
func (e *Engine) Reload(cfg config.AlertsConfig) error {
	if err := cfg.Thresholds.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	e.registry.SetThresholds(cfg.Thresholds)

	e.mu.Lock()
	e.pol = newPolicy(cfg.Escalation)
	e.historySize = cfg.HistorySize
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
	e.mu.Unlock()

	slog.Info("alerts: configuration reloaded",
		"priority", cfg.Escalation.Priority,
		"repeat", cfg.Escalation.Repeat,
		"recheck_delays", cfg.Escalation.RecheckDelays,
	)
	return nil
}

// Forget abandons the patient's pending rechecks and drops its strategy state.
func (e *Engine) Forget(patientID int) {
	e.mu.Lock()
	if sc, ok := e.scopes[patientID]; ok {
		sc.cancel()
		delete(e.scopes, patientID)
	}
	delete(e.edges, patientID)
	e.mu.Unlock()
	e.registry.Forget(patientID)
}

// Close abandons all pending rechecks and waits for their goroutines to exit.
// Evaluate keeps working after Close but schedules no further rechecks.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) policy() policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pol
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Cycles            int64
	Evaluated         int64
	Primed            int64
	Skipped           int64
	Plain             int64
	Priority          int64
	Repeated          int64
	RechecksRun       int64
	RechecksConfirmed int64
	RechecksMissing   int64
	Patients          int
}

type counters struct {
	cycles, evaluated, primed, skipped atomic.Int64

	plain, priority, repeated atomic.Int64

	rechecksRun, rechecksConfirmed, missing atomic.Int64
}

func (c *counters) count(a Alert) {
	switch a.Variant {
	case Priority:
		c.priority.Add(1)
	case Repeated:
		c.repeated.Add(1)
	default:
		c.plain.Add(1)
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cycles:            e.stats.cycles.Load(),
		Evaluated:         e.stats.evaluated.Load(),
		Primed:            e.stats.primed.Load(),
		Skipped:           e.stats.skipped.Load(),
		Plain:             e.stats.plain.Load(),
		Priority:          e.stats.priority.Load(),
		Repeated:          e.stats.repeated.Load(),
		RechecksRun:       e.stats.rechecksRun.Load(),
		RechecksConfirmed: e.stats.rechecksConfirmed.Load(),
		RechecksMissing:   e.stats.missing.Load(),
		Patients:          e.registry.Len(),
	}
}
