// Package alerts evaluates patient records against detection strategies and
// emits alerts.
//
// The Engine pulls records newer than each patient's watermark from the
// store, primes the patient's strategies with the history they need, and
// builds an Alert through the factory registered for every strategy that
// fires. Alerts from priority strategies are escalated; alerts from repeat
// strategies are re-verified at fixed delays and each positive recheck is
// emitted again as a numbered occurrence.
//
// Emitted alerts go to a Sink. Sinks in this package log them, print them,
// post them to Slack, Teams or generic HTTP webhooks, and publish them to NATS.
package alerts
