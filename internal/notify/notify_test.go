package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

func testEscalation() *types.Escalation {
	return &types.Escalation{
		ID:         "esc-1",
		Type:       types.EscalationRetryExhausted,
		Severity:   types.SeverityMedium,
		ResourceID: "PR-42",
		Reason:     "connection timeout after 3 attempts",
		CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLoadRoutesConfig(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings")
	if err := os.MkdirAll(settings, 0o750); err != nil {
		t.Fatal(err)
	}
	raw := `{
		"type": "escalation",
		"version": 1,
		"routes": {
			"critical": ["log", "webhook"],
			"default": ["log"]
		},
		"contacts": {"escalation_webhook": "https://hooks.example.com/tamma"}
	}`
	if err := os.WriteFile(filepath.Join(settings, "escalation.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadRoutesConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := config.Routes["critical"]; len(got) != 2 {
		t.Errorf("critical routes = %v, want 2 entries", got)
	}
	if config.Contacts["escalation_webhook"] == "" {
		t.Error("contact not loaded")
	}
}

func TestDispatchFallsBackToLog(t *testing.T) {
	d := NewDispatcher(t.TempDir(), nil) // no settings file

	results := d.Dispatch(context.Background(), testEscalation())
	if len(results) != 1 || results[0].Channel != "log" || !results[0].Success {
		t.Errorf("results = %+v, want single successful log dispatch", results)
	}
}

func TestDispatchSeverityRouting(t *testing.T) {
	config := &RoutesConfig{
		Routes: map[string][]string{
			"high":    {"log", "webhook"},
			"default": {"log"},
		},
	}
	d := NewDispatcherWithConfig(config, nil)

	esc := testEscalation()
	esc.Severity = types.SeverityLow
	results := d.Dispatch(context.Background(), esc)
	if len(results) != 1 || results[0].Channel != "log" {
		t.Errorf("low severity should use default route, got %+v", results)
	}

	esc.Severity = types.SeverityHigh
	results = d.Dispatch(context.Background(), esc)
	if len(results) != 2 {
		t.Fatalf("high severity should use both channels, got %+v", results)
	}
	// webhook has no contact configured: logged as failure, not fatal
	if results[1].Success {
		t.Error("webhook without URL should fail")
	}
}

func TestSendWebhook(t *testing.T) {
	var received types.Escalation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	config := &RoutesConfig{
		Routes:   map[string][]string{"default": {"webhook"}},
		Contacts: map[string]string{"escalation_webhook": srv.URL},
	}
	d := NewDispatcherWithConfig(config, nil)

	results := d.Dispatch(context.Background(), testEscalation())
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("webhook dispatch failed: %+v", results)
	}
	if received.ID != "esc-1" {
		t.Errorf("webhook payload ID = %q", received.ID)
	}
}

func TestSendWebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	config := &RoutesConfig{
		Routes: map[string][]string{"default": {"webhook:" + srv.URL}},
	}
	d := NewDispatcherWithConfig(config, nil)

	results := d.Dispatch(context.Background(), testEscalation())
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected failure on 403, got %+v", results)
	}
}

func TestDispatchUnknownChannel(t *testing.T) {
	config := &RoutesConfig{Routes: map[string][]string{"default": {"pager"}}}
	d := NewDispatcherWithConfig(config, nil)

	results := d.Dispatch(context.Background(), testEscalation())
	if len(results) != 1 || results[0].Success {
		t.Fatalf("unknown channel should fail, got %+v", results)
	}
}
