// Package policy loads per-operation retry policies from files. A policy
// names an operation kind ("ci_check", "provider_call") and overrides the
// engine's retry defaults for it: attempt budget, backoff strategy and
// delays, and extra classification patterns.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tammahq/tamma/internal/types"
)

// Policy file extensions. TOML is preferred, JSON is legacy fallback.
const (
	PolicyExtTOML = ".policy.toml"
	PolicyExtJSON = ".policy.json"
)

// Duration is a time.Duration that unmarshals from "30s"-style strings in
// both TOML and JSON, or from a bare number of milliseconds in legacy JSON.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Policy is one loaded policy file. Zero fields leave the corresponding
// engine default untouched; only what the file names is overridden.
type Policy struct {
	// Policy is the operation kind this policy applies to.
	Policy      string `toml:"policy" json:"policy"`
	Description string `toml:"description,omitempty" json:"description,omitempty"`
	Version     int    `toml:"version,omitempty" json:"version,omitempty"`

	MaxAttempts int                   `toml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	Strategy    types.BackoffStrategy `toml:"strategy,omitempty" json:"strategy,omitempty"`
	BaseDelay   Duration              `toml:"base_delay,omitempty" json:"base_delay,omitempty"`
	MaxDelay    Duration              `toml:"max_delay,omitempty" json:"max_delay,omitempty"`

	// Extra substring patterns checked before the built-in classification
	// table: matches force retryable / non-retryable respectively.
	RetryablePatterns    []string `toml:"retryable_patterns,omitempty" json:"retryable_patterns,omitempty"`
	NonRetryablePatterns []string `toml:"non_retryable_patterns,omitempty" json:"non_retryable_patterns,omitempty"`

	// Source is the absolute path the policy was loaded from.
	Source string `toml:"-" json:"-"`
}

// Validate checks the loaded fields for internal consistency.
func (p *Policy) Validate() error {
	if p.Policy == "" {
		return fmt.Errorf("policy name (operation kind) is required")
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("policy %s: max_attempts must not be negative", p.Policy)
	}
	if p.Strategy != "" && !p.Strategy.IsValid() {
		return fmt.Errorf("policy %s: invalid strategy %q", p.Policy, p.Strategy)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("policy %s: delays must not be negative", p.Policy)
	}
	if p.MaxDelay > 0 && p.BaseDelay.Std() > p.MaxDelay.Std() {
		return fmt.Errorf("policy %s: base_delay %s exceeds max_delay %s", p.Policy, p.BaseDelay.Std(), p.MaxDelay.Std())
	}
	return nil
}

// Apply copies the policy's set fields onto a retry context.
func (p *Policy) Apply(rc *types.RetryContext) {
	if p.MaxAttempts > 0 {
		rc.MaxAttempts = p.MaxAttempts
	}
	if p.Strategy != "" {
		rc.Strategy = p.Strategy
	}
	if p.BaseDelay > 0 {
		rc.BaseDelay = p.BaseDelay.Std()
	}
	if p.MaxDelay > 0 {
		rc.MaxDelay = p.MaxDelay.Std()
	}
	rc.RetryablePatterns = append(rc.RetryablePatterns, p.RetryablePatterns...)
	rc.NonRetryablePatterns = append(rc.NonRetryablePatterns, p.NonRetryablePatterns...)
}

// Loader handles loading policies from search paths.
//
// NOTE: Loader is NOT thread-safe. Create a new Loader per goroutine or
// synchronize access externally; the cache has no internal synchronization.
type Loader struct {
	// searchPaths are directories to search for policies (in order).
	searchPaths []string

	// cache stores loaded policies by absolute path and by name.
	cache map[string]*Policy
}

// NewLoader creates a policy loader. searchPaths are directories searched in
// order when resolving a policy by name. Default paths are:
// .tamma/policies, ~/.tamma/policies, $TAMMA_ROOT/.tamma/policies
func NewLoader(searchPaths ...string) *Loader {
	paths := searchPaths
	if len(paths) == 0 {
		paths = defaultSearchPaths()
	}
	return &Loader{
		searchPaths: paths,
		cache:       make(map[string]*Policy),
	}
}

func defaultSearchPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".tamma", "policies"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tamma", "policies"))
	}

	if root := os.Getenv("TAMMA_ROOT"); root != "" {
		paths = append(paths, filepath.Join(root, ".tamma", "policies"))
	}

	return paths
}

// ParseFile parses a policy from a file path. Detects format from extension:
// .policy.toml or .policy.json.
func (l *Loader) ParseFile(path string) (*Policy, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	if cached, ok := l.cache[absPath]; ok {
		return cached, nil
	}

	// #nosec G304 -- absPath comes from controlled search paths or explicit user input
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var policy *Policy
	if strings.HasSuffix(path, PolicyExtTOML) {
		policy, err = ParseTOML(data)
	} else {
		policy, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	policy.Source = absPath
	l.cache[absPath] = policy
	l.cache[policy.Policy] = policy

	return policy, nil
}

// Parse parses a policy from JSON bytes.
func Parse(data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if policy.Version == 0 {
		policy.Version = 1
	}
	return &policy, nil
}

// ParseTOML parses a policy from TOML bytes.
func ParseTOML(data []byte) (*Policy, error) {
	var policy Policy
	if err := toml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	if policy.Version == 0 {
		policy.Version = 1
	}
	return &policy, nil
}

// LoadByName loads a policy by operation kind from the search paths. Tries
// TOML first (.policy.toml), then falls back to JSON (.policy.json).
func (l *Loader) LoadByName(kind string) (*Policy, error) {
	if cached, ok := l.cache[kind]; ok {
		return cached, nil
	}

	extensions := []string{PolicyExtTOML, PolicyExtJSON}
	for _, dir := range l.searchPaths {
		for _, ext := range extensions {
			path := filepath.Join(dir, kind+ext)
			if _, err := os.Stat(path); err == nil {
				return l.ParseFile(path)
			}
		}
	}

	return nil, fmt.Errorf("policy %q not found in search paths", kind)
}

// Resolve returns base with the named policy's overrides applied. A missing
// policy file is not an error: the base context is returned unchanged, so
// callers can resolve every operation kind unconditionally.
func (l *Loader) Resolve(kind string, base types.RetryContext) types.RetryContext {
	policy, err := l.LoadByName(kind)
	if err != nil {
		return base
	}
	policy.Apply(&base)
	return base
}
