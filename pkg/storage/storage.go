// Package storage keeps a local SQLite journal of consumed listing and sync
// pages.
package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/httprunner/depsync"
	"github.com/httprunner/depsync/internal/config"
	pkgerrors "github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pagesTableName    = "sync_pages"
	opsTableName      = "sync_ops"
	defaultEntryLimit = 50
	maxBusyAttempts   = 3
)

// recordedAtLayout sorts lexically in time order.
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// journalPragmas run on every new connection pool. A single writer
// connection plus WAL lets readers (journal command) run alongside a sync.
var journalPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=60000",
}

// ResolveDatabasePath returns the journal location: $DEP_JOURNAL_PATH when
// set, ~/.depsync/journal.sqlite otherwise. The parent directory is created.
func ResolveDatabasePath() (string, error) {
	path := config.String(depsync.EnvJournalPath, "")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", pkgerrors.Wrap(err, "storage: locate user home failed")
		}
		path = filepath.Join(home, ".depsync", "journal.sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", pkgerrors.Wrapf(err, "storage: create dir for %s failed", path)
	}
	return path, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, pkgerrors.New("storage: journal path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: open sqlite %s failed", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range journalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, pkgerrors.Wrapf(err, "storage: %s failed", pragma)
		}
	}
	return db, nil
}

func quoteIdent(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isSQLiteBusy matches SQLITE_BUSY and SQLITE_LOCKED, including extended
// result codes, and falls back to the driver's message text.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if pkgerrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
