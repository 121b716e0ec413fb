package alerts

import (
	"context"
	"log/slog"
	"time"
)

// scope bounds the lifetime of one patient's pending rechecks.
type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// recheck re-verifies a repeat-eligible alert against the patient's latest
// record of the same kind at fixed delays after the first emission.
type recheck struct {
	patientID int
	alert     Alert
	delays    []time.Duration
}

// schedule starts the recheck goroutine. It is a no-op once the engine is
// closed. The goroutine exits without reporting when the patient is forgotten
// or the engine closes.
func (e *Engine) schedule(rc recheck) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	sc, ok := e.scopes[rc.patientID]
	if !ok {
		ctx, cancel := context.WithCancel(e.ctx)
		sc = &scope{ctx: ctx, cancel: cancel}
		e.scopes[rc.patientID] = sc
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.runRechecks(sc.ctx, rc)
	}()
}

func (e *Engine) runRechecks(ctx context.Context, rc recheck) {
	start := time.Now()
	for i, d := range rc.delays {
		timer := time.NewTimer(time.Until(start.Add(d)))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("alerts: rechecks abandoned",
				"id", rc.alert.ID, "patient", rc.patientID, "completed", i)
			return
		case <-timer.C:
		}

		if a, ok := e.recheckOnce(rc, i+1); ok {
			e.emit(a)
		}
	}
}

// recheckOnce fetches the latest record of the alert's kind and re-runs the
// bound strategy on it. A missing record or a negative result reports nothing
// and nothing already emitted is retracted.
func (e *Engine) recheckOnce(rc recheck, occurrence int) (Alert, bool) {
	e.stats.rechecksRun.Add(1)

	r, ok := e.src.LastRecordOfKind(rc.patientID, rc.alert.Kind)
	if !ok {
		e.stats.missing.Add(1)
		return Alert{}, false
	}

	set := e.registry.For(rc.patientID)
	set.Lock()
	fired := set.Feed(rc.alert.Strategy, r)
	set.Unlock()
	if !fired {
		slog.Debug("alerts: recheck negative",
			"id", rc.alert.ID, "patient", rc.patientID, "occurrence", occurrence)
		return Alert{}, false
	}

	e.stats.rechecksConfirmed.Add(1)
	a := rc.alert.As(Repeated)
	a.Occurrence = occurrence
	a.Rechecks = len(rc.delays)
	a.EmittedAt = e.now()
	return a, true
}
