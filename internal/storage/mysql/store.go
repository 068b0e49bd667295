// Package mysql implements the storage interface against a MySQL server.
//
// This backend serves shared deployments: several supervisor processes
// appending to one audit log over the wire. The embedded sqlite backend is
// the default for single-process use.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"github.com/tammahq/tamma/internal/storage"
)

// Config holds MySQL server connection settings.
type Config struct {
	Host     string // server host (default: 127.0.0.1)
	Port     int    // server port (default: 3306)
	User     string // MySQL user (default: root)
	Password string // MySQL password (default: empty, can be set via TAMMA_MYSQL_PASSWORD)
	Database string // database name (default: tamma)
	TLS      bool   // enable TLS for server connections
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Host == "" {
		out.Host = "127.0.0.1"
	}
	if out.Port == 0 {
		out.Port = 3306
	}
	if out.User == "" {
		out.User = "root"
	}
	if out.Database == "" {
		out.Database = "tamma"
	}
	return out
}

// Store implements storage.Store against a MySQL server.
type Store struct {
	db     *sql.DB
	cfg    Config
	closed atomic.Bool
}

var databaseNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateDatabaseName(name string) error {
	if !databaseNameRe.MatchString(name) {
		return fmt.Errorf("must match [A-Za-z0-9_-]+")
	}
	return nil
}

// buildDSN constructs a MySQL DSN. If database is empty, connects without
// selecting a database (for create-database bootstrap).
func buildDSN(cfg Config, database string) string {
	userPart := cfg.User
	if cfg.Password != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
	}

	dbPart := "/"
	if database != "" {
		dbPart = "/" + database
	}

	params := "parseTime=true"
	if cfg.TLS {
		params += "&tls=true"
	}

	return fmt.Sprintf("%s@tcp(%s:%d)%s?%s", userPart, cfg.Host, cfg.Port, dbPart, params)
}

// New connects to the server, creates the database and schema when absent,
// and returns a ready store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}

	// Bootstrap connection without a selected database so we can create it.
	initDB, err := sql.Open("mysql", buildDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("opening init connection: %w", err)
	}
	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: database name validated above
	_ = initDB.Close()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
			return nil, fmt.Errorf("connecting to MySQL at %s:%d: %w (is the server running?)", cfg.Host, cfg.Port, err)
		}
		return nil, fmt.Errorf("creating database: %w", err)
	}

	db, err := sql.Open("mysql", buildDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening server connection: %w", err)
	}

	// Multi-writer deployment: keep a modest pool alive.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging server: %w", err)
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates all tables if they don't exist. MySQL does not accept
// multiple statements in one Exec, so the schema is split and run piecewise.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

const retryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient connection error
// worth retrying. The mysql driver has no built-in retry, so stale pool
// connections and brief network blips surface here.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "driver: bad connection") {
		return true
	}
	if strings.Contains(errStr, "invalid connection") {
		return true
	}
	if strings.Contains(errStr, "broken pipe") {
		return true
	}
	if strings.Contains(errStr, "connection reset") {
		return true
	}
	// Server restart: the server may come back within the backoff window.
	if strings.Contains(errStr, "connection refused") {
		return true
	}
	// MySQL error 2013: mid-query disconnect
	if strings.Contains(errStr, "lost connection") {
		return true
	}
	// MySQL error 2006: idle connection timeout
	if strings.Contains(errStr, "gone away") {
		return true
	}
	if strings.Contains(errStr, "i/o timeout") {
		return true
	}
	return false
}

// withRetry executes an operation with retry for transient errors. Errors
// that survive the backoff window surface as ErrStoreUnavailable so callers
// fail closed.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := newRetryBackoff()
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil && isRetryableError(err) {
		return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	return err
}

// execContext wraps s.db.ExecContext with retry for transient errors.
func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// queryContext wraps s.db.QueryContext with retry for transient errors.
func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// SetConfig stores a configuration key-value pair.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.execContext(ctx, "INSERT INTO config (`key`, `value`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `value` = VALUES(`value`)", key, value)
	if err != nil {
		return fmt.Errorf("setting config %s: %w", key, err)
	}
	return nil
}

// GetConfig retrieves a configuration value. Missing keys return ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT `value` FROM config WHERE `key` = ?", key).Scan(&value)
	})
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting config %s: %w", key, err)
	}
	return value, nil
}

// splitStatements splits a SQL script into individual statements, respecting
// string literals.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			statements = append(statements, current.String())
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}
	if current.Len() > 0 {
		statements = append(statements, current.String())
	}
	return statements
}

func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

var _ storage.Store = (*Store)(nil)
