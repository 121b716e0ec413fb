// Package ws implements the WebSocket hub that streams alerts to clients.
//
// New(recent) creates a Hub. Hub.Publish (or the Sink it returns) sends each
// emitted alert to every connected client. Hub.ServeHTTP upgrades a request,
// sends the recent alert history at once, then streams new alerts.
//
// Message format sent to clients:
//
//	{"event": "snapshot", "data": [ /* recent alerts, newest first */ ]}
//	{"event": "alert",    "data": { /* one alert */ }}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/alerts.
package ws
