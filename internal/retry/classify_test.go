package retry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tammahq/tamma/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    types.ErrorClassification
	}{
		{"connection timeout while fetching status", types.ClassNetworkTimeout},
		{"read tcp 10.0.0.1:443: i/o timeout", types.ClassNetworkTimeout},
		{"context deadline exceeded", types.ClassNetworkTimeout},
		{"dial tcp: connection refused", types.ClassNetworkTimeout},
		{"API rate limit exceeded for installation", types.ClassRateLimited},
		{"HTTP 429 too many requests", types.ClassRateLimited},
		{"runner out of memory", types.ClassResourceExhausted},
		{"no space left on device", types.ClassResourceExhausted},
		{"503 service unavailable", types.ClassDependencyUnavailable},
		{"build timed out after 30m", types.ClassBuildTimeout},
		{"compilation error in main.go", types.ClassCompilationError},
		{"build failed: undefined symbol", types.ClassCompilationError},
		{"3 tests failed", types.ClassTestFailure},
		{"resource temporarily unavailable", types.ClassTemporaryFailure},

		{"authentication failed for user bot", types.ClassAuthenticationFailed},
		{"HTTP 401 unauthenticated", types.ClassAuthenticationFailed},
		{"bad credentials", types.ClassInvalidCredentials},
		{"token expired at 2026-08-01", types.ClassInvalidCredentials},
		{"permission denied: repo admin required", types.ClassPermissionDenied},
		{"403 forbidden", types.ClassPermissionDenied},
		{"module not found: left-pad", types.ClassMissingDependency},
		{"invalid configuration: poll interval must be positive", types.ClassConfigurationError},
		{"syntax error near line 7", types.ClassSyntaxError},

		// Unknown errors default to retryable, never silently non-retryable.
		{"something deeply weird happened", types.ClassTemporaryFailure},
	}

	for _, tt := range tests {
		got := Classify(errors.New(tt.message), nil)
		if got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil, nil); got != "" {
		t.Errorf("Classify(nil) = %q, want empty", got)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	got := Classify(fmt.Errorf("CONNECTION TIMEOUT"), nil)
	if got != types.ClassNetworkTimeout {
		t.Errorf("got %s, want network_timeout", got)
	}
}

func TestClassifyContextOverrides(t *testing.T) {
	rc := &types.RetryContext{
		NonRetryablePatterns: []string{"poison pill"},
		RetryablePatterns:    []string{"flaky widget"},
	}

	if got := Classify(errors.New("hit the poison pill path"), rc); got.Retryable() {
		t.Errorf("non-retryable override ignored: %s", got)
	}
	if got := Classify(errors.New("flaky widget again"), rc); !got.Retryable() {
		t.Errorf("retryable override ignored: %s", got)
	}
	// Overrides beat the built-in table.
	if got := Classify(errors.New("poison pill: connection timeout"), rc); got.Retryable() {
		t.Errorf("override should win over built-in pattern: %s", got)
	}
}
