// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - HTTPPort              port for the REST API, metrics and WebSocket hub (default 8080)
//   - Auth                  API key authentication for the REST API
//   - Log.Level             debug, info, warn or error (default info)
//   - Evaluation.Interval   how often new records are evaluated (default 1s)
//   - Ingest                measurement feeds: directories, WebSocket URLs, NATS
//   - Alerts.Thresholds     detection strategy limits
//   - Alerts.Escalation     priority and repeat strategies, recheck delays
//   - Alerts.Webhooks       Slack, Teams or generic HTTP delivery
//   - Alerts.NATS           publish alerts as JSON to a NATS subject
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads the file on change and reports which sections
// differ from the last good load.
package config
