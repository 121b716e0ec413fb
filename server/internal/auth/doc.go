// Package auth provides API key authentication for the HTTP API.
//
// APIKey(mode, header, key) wraps a handler. When mode is "apikey" and key is
// non-empty, requests must carry the key in header; otherwise the wrapped
// handler is returned unchanged. The expected key is resolved from the
// environment by config.AuthConfig.Key, never stored in config.yaml.
package auth
