// Package metrics exposes server counters in the Prometheus text format.
//
// Collectors return ready-built metric families; the Registry gathers them on
// each scrape and encodes them with expfmt.
package metrics
