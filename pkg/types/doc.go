// Package types defines the shared Go types used across the monitor: the
// measurement kinds and the immutable Record handed from ingestion to the
// patient store and on to the alert engine.
package types
