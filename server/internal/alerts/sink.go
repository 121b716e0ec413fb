package alerts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink consumes emitted alerts. Sinks are called synchronously from the
// engine and must not block; slow delivery belongs on its own goroutine.
type Sink func(Alert)

// Fanout returns a Sink that calls every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(a Alert) {
		for _, s := range live {
			s(a)
		}
	}
}

// LogSink logs each alert through logger at a level derived from its severity.
func LogSink(logger *slog.Logger) Sink {
	return func(a Alert) {
		lvl := slog.LevelWarn
		switch a.Severity() {
		case "critical":
			lvl = slog.LevelError
		case "info":
			lvl = slog.LevelInfo
		}
		logger.Log(context.Background(), lvl, "alert",
			"id", a.ID,
			"patient", a.PatientID,
			"condition", a.Condition,
			"timestamp", a.Timestamp,
			"strategy", a.Strategy,
			"variant", a.Variant,
			"occurrence", a.Occurrence,
		)
	}
}

// WriterSink prints one line per alert to w in its console form.
func WriterSink(w io.Writer) Sink {
	var mu sync.Mutex
	return func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, a.String())
	}
}
