package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vitalwatch/vitalwatch/server/internal/config"
)

// Notifier delivers alerts to the configured webhook targets.
// Delivery is asynchronous; errors are logged and never reach the engine.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	wg       sync.WaitGroup
}

// NewNotifier returns a Notifier for webhooks.
func NewNotifier(webhooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Sink returns a Sink that delivers each alert on its own goroutine.
func (n *Notifier) Sink() Sink {
	return func(a Alert) {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliver(a)
		}()
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) deliver(a Alert) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, a)
		case "teams":
			err = n.sendTeams(url, a)
		case "http":
			err = n.sendHTTP(url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"id", a.ID,
				"patient", a.PatientID,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"id", a.ID,
				"variant", a.Variant,
			)
		}
	}
}

func (n *Notifier) sendSlack(url string, a Alert) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity()), a.String()),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, a Alert) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity()),
		"summary":    a.Condition,
		"title":      fmt.Sprintf("VitalWatch: patient %s", a.PatientID),
		"text":       a.String(),
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, a Alert) error {
	body, _ := json.Marshal(map[string]interface{}{"alert": a, "severity": a.Severity()})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
