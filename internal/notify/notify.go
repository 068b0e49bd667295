// Package notify handles sending notifications for escalations. Escalations
// are dispatched to configured channels (log, webhook) based on routes
// defined in settings/escalation.json under the tamma directory.
//
// Notification delivery is best-effort: the durable escalation record and
// its events are the source of truth, and a failed send is logged but never
// blocks escalation persistence.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

// Notifier sends one escalation to one channel.
type Notifier interface {
	Send(ctx context.Context, channel string, esc *types.Escalation) error
}

// RoutesConfig holds the escalation routing settings from escalation.json.
// Routes are keyed by severity ("low".."critical", plus "default"), each
// naming the channels to notify.
type RoutesConfig struct {
	Type     string              `json:"type"`
	Version  int                 `json:"version"`
	Routes   map[string][]string `json:"routes"`
	Contacts map[string]string   `json:"contacts"`
}

// LoadRoutesConfig loads the routing configuration from
// settings/escalation.json in the given tamma directory.
func LoadRoutesConfig(tammaDir string) (*RoutesConfig, error) {
	configPath := filepath.Join(tammaDir, "settings", "escalation.json")

	data, err := os.ReadFile(configPath) // #nosec G304 - path rooted in the tamma dir
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation config: %w", err)
	}

	var config RoutesConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse escalation config: %w", err)
	}
	return &config, nil
}

// DispatchResult records the outcome of one channel dispatch.
type DispatchResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans an escalation out to its configured channels.
type Dispatcher struct {
	config     *RoutesConfig
	logger     *slog.Logger
	httpClient *http.Client
}

// NewDispatcher creates a dispatcher reading routes from tammaDir. A missing
// or unparseable routes file falls back to the log channel only.
func NewDispatcher(tammaDir string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	config, err := LoadRoutesConfig(tammaDir)
	if err != nil {
		config = nil
	}
	return &Dispatcher{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewDispatcherWithConfig creates a dispatcher with an explicit config,
// bypassing the settings file. Used by tests and embedders.
func NewDispatcherWithConfig(config *RoutesConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch sends the escalation to every channel routed for its severity.
// Failures are recorded per channel; none of them abort the others.
func (d *Dispatcher) Dispatch(ctx context.Context, esc *types.Escalation) []DispatchResult {
	routes := d.getRoutes(string(esc.Severity))

	results := make([]DispatchResult, 0, len(routes))
	for _, route := range routes {
		result := d.dispatchToChannel(ctx, esc, route)
		if !result.Success {
			d.logger.Warn("escalation notification failed",
				"escalation_id", esc.ID, "channel", result.Channel, "error", result.Error)
		}
		results = append(results, result)
	}
	return results
}

// getRoutes returns the channels for the given severity key, falling back to
// the default route and finally to the log channel.
func (d *Dispatcher) getRoutes(severity string) []string {
	if d.config == nil || d.config.Routes == nil {
		return []string{"log"}
	}
	if routes, ok := d.config.Routes[severity]; ok {
		return routes
	}
	if routes, ok := d.config.Routes["default"]; ok {
		return routes
	}
	return []string{"log"}
}

func (d *Dispatcher) dispatchToChannel(ctx context.Context, esc *types.Escalation, channel string) DispatchResult {
	result := DispatchResult{Channel: channel}

	switch {
	case channel == "log":
		d.logEscalation(esc)
		result.Success = true

	case channel == "webhook":
		url := d.resolveContact("escalation_webhook")
		if url == "" {
			result.Error = "no webhook URL configured"
		} else {
			err := d.sendWebhook(ctx, esc, url)
			result.Success = err == nil
			if err != nil {
				result.Error = err.Error()
			}
		}

	case strings.HasPrefix(channel, "webhook:"):
		err := d.sendWebhook(ctx, esc, strings.TrimPrefix(channel, "webhook:"))
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
		}

	default:
		result.Error = fmt.Sprintf("unknown channel type: %s", channel)
	}

	return result
}

// resolveContact looks up a contact endpoint from the configuration.
func (d *Dispatcher) resolveContact(name string) string {
	if d.config == nil || d.config.Contacts == nil {
		return ""
	}
	return d.config.Contacts[name]
}

func (d *Dispatcher) logEscalation(esc *types.Escalation) {
	d.logger.Warn("escalation requires attention",
		"escalation_id", esc.ID,
		"type", esc.Type,
		"severity", esc.Severity,
		"resource_id", esc.ResourceID,
		"operation_id", esc.OperationID,
		"attempts", len(esc.RetryHistory),
		"reason", truncate(esc.Reason, 200),
	)
}

// sendWebhook POSTs the escalation as JSON to the given URL. Non-2xx
// responses are errors.
func (d *Dispatcher) sendWebhook(ctx context.Context, esc *types.Escalation, url string) error {
	body, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
