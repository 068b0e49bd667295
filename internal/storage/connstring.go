package storage

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// SQLiteConnString builds a SQLite connection string with standard pragmas.
//
// Includes busy_timeout (prevents "database is locked" under concurrency),
// foreign_keys, and WAL journaling. Honors the TAMMA_LOCK_TIMEOUT env var
// for busy timeout (default 30s). If readOnly is true, the connection is
// opened in read-only mode. If path is already a file: URI, pragmas are
// appended only if absent.
func SQLiteConnString(path string, readOnly bool) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("TAMMA_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if readOnly && !strings.Contains(conn, "mode=") {
			conn += sep + "mode=ro"
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(1)"
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=journal_mode") && !strings.Contains(conn, "memory") {
			conn += sep + "_pragma=journal_mode(WAL)"
		}
		return conn
	}

	mode := ""
	if readOnly {
		mode = "mode=ro&"
	}
	return fmt.Sprintf("file:%s?%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, mode, busyMs)
}
