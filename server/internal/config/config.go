package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalwatch/vitalwatch/server/internal/strategy"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort           = 8080
	DefaultEvaluationInterval = time.Second
	DefaultHistorySize        = 200
	DefaultNATSSubject        = "vitalwatch.alerts"
)

// DefaultRecheckDelays are the wall-clock delays after an emission at which a
// repeat-eligible alert is re-verified.
var DefaultRecheckDelays = []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second}

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the REST API authenticates clients.
	Auth AuthConfig `yaml:"auth"`

	// Log controls the structured logger.
	Log LogConfig `yaml:"log"`

	// Evaluation controls the periodic alert evaluation cycle.
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Ingest lists the measurement feeds to read from.
	Ingest IngestConfig `yaml:"ingest"`

	// Alerts holds detection thresholds, escalation policy and delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the REST API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error (default info).
	Level string `yaml:"level"`
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// EvaluationConfig controls the evaluation cycle.
type EvaluationConfig struct {
	// Interval is how often every patient's new records are evaluated (default 1s).
	Interval time.Duration `yaml:"interval"`
}

// IngestConfig lists measurement feeds.
type IngestConfig struct {
	// Dirs are directories whose files are read line by line at startup.
	Dirs []string `yaml:"dirs"`

	// WebSockets are ws:// URLs streaming one measurement line per message.
	WebSockets []string `yaml:"websockets"`

	// NATS subscribes to a subject carrying one measurement line per message.
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig identifies a NATS server and subject.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222. Empty disables NATS.
	URL string `yaml:"url"`

	// Subject is the subject to subscribe or publish to.
	Subject string `yaml:"subject"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// AlertsConfig holds detection and delivery settings.
type AlertsConfig struct {
	// Thresholds tunes the detection strategies. Omitted fields keep defaults.
	Thresholds strategy.Thresholds `yaml:"thresholds"`

	// Escalation selects which strategies are decorated and rechecked.
	Escalation EscalationConfig `yaml:"escalation"`

	// HistorySize bounds the number of recent alerts kept for the API (default 200).
	HistorySize int `yaml:"history_size"`

	// Webhooks are HTTP delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// NATS publishes every alert as JSON when URL is set.
	NATS NATSConfig `yaml:"nats"`
}

// EscalationConfig lists strategies by name (systolic, diastolic, ecg,
// saturation, combined, triggered).
type EscalationConfig struct {
	// Priority strategies emit a priority-decorated alert.
	Priority []string `yaml:"priority"`

	// Repeat strategies emit a repeat-decorated alert and are rechecked.
	Repeat []string `yaml:"repeat"`

	// RecheckDelays are measured from the first emission (default 3s, 6s, 9s).
	RecheckDelays []time.Duration `yaml:"recheck_delays"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if cfg.Server.Alerts.NATS.Enabled() && cfg.Server.Alerts.NATS.Subject == "" {
		cfg.Server.Alerts.NATS.Subject = DefaultNATSSubject
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	delays := make([]time.Duration, len(DefaultRecheckDelays))
	copy(delays, DefaultRecheckDelays)
	return &Config{
		Server: ServerConfig{
			HTTPPort:   DefaultHTTPPort,
			Evaluation: EvaluationConfig{Interval: DefaultEvaluationInterval},
			Alerts: AlertsConfig{
				Thresholds: strategy.DefaultThresholds(),
				Escalation: EscalationConfig{
					Priority:      []string{strategy.NameSaturation},
					Repeat:        []string{strategy.NameSaturation},
					RecheckDelays: delays,
				},
				HistorySize: DefaultHistorySize,
			},
		},
	}
}

var strategyNames = map[string]bool{
	strategy.NameSystolic:   true,
	strategy.NameDiastolic:  true,
	strategy.NameECG:        true,
	strategy.NameSaturation: true,
	strategy.NameCombined:   true,
	strategy.NameTriggered:  true,
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if _, err := s.Log.SlogLevel(); err != nil {
		return fmt.Errorf("server.log.level: %w", err)
	}
	if s.Evaluation.Interval <= 0 {
		return fmt.Errorf("server.evaluation.interval must be positive")
	}
	if s.Ingest.NATS.Enabled() && s.Ingest.NATS.Subject == "" {
		return fmt.Errorf("server.ingest.nats.subject is required when url is set")
	}
	if err := s.Alerts.Thresholds.Validate(); err != nil {
		return fmt.Errorf("server.alerts.thresholds: %w", err)
	}
	for _, name := range append(append([]string{}, s.Alerts.Escalation.Priority...), s.Alerts.Escalation.Repeat...) {
		if !strategyNames[name] {
			return fmt.Errorf("server.alerts.escalation: unknown strategy %q", name)
		}
	}
	for i, d := range s.Alerts.Escalation.RecheckDelays {
		if d <= 0 {
			return fmt.Errorf("server.alerts.escalation.recheck_delays[%d] must be positive", i)
		}
	}
	if s.Alerts.HistorySize < 0 {
		return fmt.Errorf("server.alerts.history_size must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
