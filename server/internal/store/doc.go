// Package store holds the in-memory patient record store. Each patient owns
// a time-ordered Timeline with (timestamp, kind) deduplication, boundary-exact
// range queries and a monotonic scanned watermark used by the alert engine for
// incremental evaluation.
//
// Build with the timelinedebug tag to turn ordering-invariant violations into
// panics.
package store
