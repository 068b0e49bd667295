// Package retry implements the retry/escalation decision engine: failure
// classification, backoff strategies, the shouldRetry decision, and the
// ExecuteWithRetry wrapper that records every attempt durably before acting
// on it.
package retry

import (
	"strings"

	"github.com/tammahq/tamma/internal/types"
)

// classificationPatterns maps lowercase substrings of error text to a
// classification, checked in order. Earlier entries win, so the more
// specific patterns come first.
//
// An error matching nothing defaults to temporary_failure: unclassified
// errors must stay retryable, since defaulting them to non-retryable would
// silently block progress without signal.
var classificationPatterns = []struct {
	substr string
	class  types.ErrorClassification
}{
	// Non-retryable first: these are definitive regardless of transport noise
	// in the rest of the message.
	{"authentication failed", types.ClassAuthenticationFailed},
	{"unauthenticated", types.ClassAuthenticationFailed},
	{"401", types.ClassAuthenticationFailed},
	{"invalid credentials", types.ClassInvalidCredentials},
	{"bad credentials", types.ClassInvalidCredentials},
	{"invalid token", types.ClassInvalidCredentials},
	{"token expired", types.ClassInvalidCredentials},
	{"permission denied", types.ClassPermissionDenied},
	{"forbidden", types.ClassPermissionDenied},
	{"403", types.ClassPermissionDenied},
	{"missing dependency", types.ClassMissingDependency},
	{"module not found", types.ClassMissingDependency},
	{"package not found", types.ClassMissingDependency},
	{"configuration error", types.ClassConfigurationError},
	{"invalid configuration", types.ClassConfigurationError},
	{"misconfigured", types.ClassConfigurationError},
	{"syntax error", types.ClassSyntaxError},
	{"parse error", types.ClassSyntaxError},

	// Rate limiting before generic network noise: a 429 body often also
	// mentions the connection.
	{"rate limit", types.ClassRateLimited},
	{"too many requests", types.ClassRateLimited},
	{"429", types.ClassRateLimited},

	{"build timeout", types.ClassBuildTimeout},
	{"build timed out", types.ClassBuildTimeout},

	{"connection timeout", types.ClassNetworkTimeout},
	{"connection timed out", types.ClassNetworkTimeout},
	{"i/o timeout", types.ClassNetworkTimeout},
	{"deadline exceeded", types.ClassNetworkTimeout},
	{"connection refused", types.ClassNetworkTimeout},
	{"connection reset", types.ClassNetworkTimeout},
	{"broken pipe", types.ClassNetworkTimeout},
	{"no such host", types.ClassNetworkTimeout},

	{"resource exhausted", types.ClassResourceExhausted},
	{"out of memory", types.ClassResourceExhausted},
	{"no space left", types.ClassResourceExhausted},
	{"quota exceeded", types.ClassResourceExhausted},

	{"service unavailable", types.ClassDependencyUnavailable},
	{"503", types.ClassDependencyUnavailable},
	{"bad gateway", types.ClassDependencyUnavailable},
	{"upstream", types.ClassDependencyUnavailable},

	{"compilation error", types.ClassCompilationError},
	{"compile error", types.ClassCompilationError},
	{"cannot compile", types.ClassCompilationError},
	{"build failed", types.ClassCompilationError},

	{"test failure", types.ClassTestFailure},
	{"test failed", types.ClassTestFailure},
	{"tests failed", types.ClassTestFailure},
	{"assertion failed", types.ClassTestFailure},

	{"temporarily unavailable", types.ClassTemporaryFailure},
	{"temporary failure", types.ClassTemporaryFailure},
	{"try again", types.ClassTemporaryFailure},
	{"internal server error", types.ClassTemporaryFailure},
	{"500", types.ClassTemporaryFailure},
}

// Classify assigns exactly one classification to an error based on its
// message text. Pattern overrides from the retry context are checked before
// the built-in table; an error matching no pattern is temporary_failure.
func Classify(err error, rc *types.RetryContext) types.ErrorClassification {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())

	if rc != nil {
		for _, p := range rc.NonRetryablePatterns {
			if p != "" && strings.Contains(text, strings.ToLower(p)) {
				return types.ClassConfigurationError
			}
		}
		for _, p := range rc.RetryablePatterns {
			if p != "" && strings.Contains(text, strings.ToLower(p)) {
				return types.ClassTemporaryFailure
			}
		}
	}

	for _, p := range classificationPatterns {
		if strings.Contains(text, p.substr) {
			return p.class
		}
	}
	return types.ClassTemporaryFailure
}
