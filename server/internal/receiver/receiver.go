package receiver

import (
	"bufio"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/vitalwatch/vitalwatch/pkg/types"
)

// Adder stores validated records. *store.Store satisfies it.
type Adder interface {
	Add(r types.Record)
}

// Receiver parses measurement lines and adds accepted records to the store.
// Receiver is safe for concurrent use by multiple feeds.
type Receiver struct {
	dst Adder

	accepted atomic.Int64
	rejected atomic.Int64
	resolved atomic.Int64
}

// New returns a Receiver writing to dst.
func New(dst Adder) *Receiver {
	return &Receiver{dst: dst}
}

// Handle parses line and stores the record. Resolved alerts return
// ErrResolved and are not stored.
func (rx *Receiver) Handle(source, line string) error {
	r, err := ParseLine(line)
	switch {
	case errors.Is(err, ErrResolved):
		rx.resolved.Add(1)
		return err
	case err != nil:
		rx.rejected.Add(1)
		slog.Debug("receiver: line rejected", "source", source, "line", line, "err", err)
		return err
	}
	rx.dst.Add(r)
	rx.accepted.Add(1)
	return nil
}

// HandleText handles every non-blank line in text and returns the number of
// records stored.
func (rx *Receiver) HandleText(source, text string) int {
	n := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rx.Handle(source, line) == nil {
			n++
		}
	}
	return n
}

// Stats counts lines by outcome.
type Stats struct {
	Accepted int64
	Rejected int64
	Resolved int64
}

// Stats returns the current counters.
func (rx *Receiver) Stats() Stats {
	return Stats{
		Accepted: rx.accepted.Load(),
		Rejected: rx.rejected.Load(),
		Resolved: rx.resolved.Load(),
	}
}
