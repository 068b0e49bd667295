package mysql

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		database string
		want     string
	}{
		{
			name:     "defaults",
			cfg:      Config{Host: "127.0.0.1", Port: 3306, User: "root", Database: "tamma"},
			database: "tamma",
			want:     "root@tcp(127.0.0.1:3306)/tamma?parseTime=true",
		},
		{
			name:     "password and tls",
			cfg:      Config{Host: "db.internal", Port: 3307, User: "tamma", Password: "s3cret", TLS: true},
			database: "supervision",
			want:     "tamma:s3cret@tcp(db.internal:3307)/supervision?parseTime=true&tls=true",
		},
		{
			name:     "no database selected",
			cfg:      Config{Host: "127.0.0.1", Port: 3306, User: "root"},
			database: "",
			want:     "root@tcp(127.0.0.1:3306)/?parseTime=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildDSN(tt.cfg, tt.database); got != tt.want {
				t.Errorf("buildDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{}).withDefaults()
	if cfg.Host != "127.0.0.1" || cfg.Port != 3306 || cfg.User != "root" || cfg.Database != "tamma" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	cfg = (&Config{Host: "db", Port: 3307, User: "u", Database: "d"}).withDefaults()
	if cfg.Host != "db" || cfg.Port != 3307 || cfg.User != "u" || cfg.Database != "d" {
		t.Errorf("explicit values overridden: %+v", cfg)
	}
}

func TestValidateDatabaseName(t *testing.T) {
	for _, ok := range []string{"tamma", "tamma_prod", "Tamma-2"} {
		if err := validateDatabaseName(ok); err != nil {
			t.Errorf("validateDatabaseName(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"", "tamma`; DROP", "a b", "x`y"} {
		if err := validateDatabaseName(bad); err == nil {
			t.Errorf("validateDatabaseName(%q) accepted", bad)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"driver: bad connection",
		"invalid connection",
		"write: broken pipe",
		"read: connection reset by peer",
		"dial tcp 127.0.0.1:3306: connect: connection refused",
		"Error 2013: Lost connection to MySQL server during query",
		"MySQL server has gone away",
		"read tcp 10.0.0.2:51234: i/o timeout",
	}
	for _, msg := range retryable {
		if !isRetryableError(errors.New(msg)) {
			t.Errorf("isRetryableError(%q) = false, want true", msg)
		}
	}

	permanent := []string{
		"Error 1062: Duplicate entry 'ev-1' for key 'PRIMARY'",
		"Error 1045: Access denied for user 'root'@'localhost'",
		"syntax error",
	}
	for _, msg := range permanent {
		if isRetryableError(errors.New(msg)) {
			t.Errorf("isRetryableError(%q) = true, want false", msg)
		}
	}

	if isRetryableError(nil) {
		t.Error("isRetryableError(nil) = true")
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schema)
	var real int
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		real++
		if !strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("unexpected statement: %.60s", stmt)
		}
	}
	if real != 7 {
		t.Errorf("schema has %d statements, want 7", real)
	}

	// Semicolons inside string literals do not split.
	parts := splitStatements(`INSERT INTO t VALUES ('a;b'); SELECT 1`)
	if len(parts) != 2 {
		t.Fatalf("split into %d parts, want 2: %q", len(parts), parts)
	}
	if !strings.Contains(parts[0], "'a;b'") {
		t.Errorf("string literal split: %q", parts[0])
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike("RETRY"); got != "RETRY" {
		t.Errorf("escapeLike plain = %q", got)
	}
	if got := escapeLike("100%_done"); got != `100\%\_done` {
		t.Errorf("escapeLike metachars = %q", got)
	}
}
