// Package receiver turns measurement feeds into store records.
//
// Every feed carries lines of the form
//
//	Patient ID: 12, Timestamp: 1714376789049, Label: Saturation, Data: 97%
//
// ParseLine validates one line. A Receiver parses lines and adds the accepted
// records to the store. Lines can come from files in a directory (ReadDir),
// a WebSocket stream (WebSocketReader) or a NATS subject (NATSReader).
//
// Malformed lines are counted and logged at debug level; they never stop a feed.
// "Alert" lines in the resolved state are dropped; triggered alerts are stored
// with value 0.
package receiver
