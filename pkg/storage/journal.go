package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/httprunner/depsync"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Journal appends every consumed page and its per-device outcomes to SQLite.
// It implements depsync.Recorder.
type Journal struct {
	db       *sql.DB
	path     string
	pageStmt *sql.Stmt
	opStmt   *sql.Stmt
}

var _ depsync.Recorder = (*Journal)(nil)

// OpenJournal opens (or creates) the journal at path. An empty path resolves
// through ResolveDatabasePath.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		resolved, err := ResolveDatabasePath()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "storage: resolve journal path failed")
		}
		path = resolved
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: create dir for %s failed", path)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	j := &Journal{db: db, path: path}
	if err := j.prepareStatements(); err != nil {
		j.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("storage: journal opened")
	return j, nil
}

func prepareSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			request_cursor TEXT,
			cursor TEXT,
			more_to_follow INTEGER NOT NULL DEFAULT 0,
			op_count INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL
		);`, quoteIdent(pagesTableName)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			page_id INTEGER NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			serial_number TEXT,
			op_type TEXT NOT NULL,
			outcome TEXT NOT NULL
		);`, quoteIdent(opsTableName), quoteIdent(pagesTableName)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(serial_number);`,
			quoteIdent("idx_"+opsTableName+"_serial"), quoteIdent(opsTableName)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(recorded_at);`,
			quoteIdent("idx_"+pagesTableName+"_recorded_at"), quoteIdent(pagesTableName)),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "storage: prepare journal schema failed")
		}
	}
	return nil
}

func (j *Journal) prepareStatements() error {
	var err error
	j.pageStmt, err = j.db.Prepare(fmt.Sprintf(
		`INSERT INTO %s (kind, request_cursor, cursor, more_to_follow, op_count, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		quoteIdent(pagesTableName)))
	if err != nil {
		return pkgerrors.Wrap(err, "storage: prepare page insert failed")
	}
	j.opStmt, err = j.db.Prepare(fmt.Sprintf(
		`INSERT INTO %s (page_id, serial_number, op_type, outcome) VALUES (?, ?, ?, ?)`,
		quoteIdent(opsTableName)))
	if err != nil {
		return pkgerrors.Wrap(err, "storage: prepare op insert failed")
	}
	return nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Close releases sqlite resources.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	if j.pageStmt != nil {
		j.pageStmt.Close()
	}
	if j.opStmt != nil {
		j.opStmt.Close()
	}
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// RecordPage stores page and its ops in one transaction, retrying briefly
// when the database is locked.
func (j *Journal) RecordPage(ctx context.Context, page depsync.PageRecord) error {
	if j == nil || j.db == nil {
		return pkgerrors.New("storage: journal not opened")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for attempt := 0; attempt < maxBusyAttempts; attempt++ {
		err := j.recordPageOnce(ctx, page)
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) || attempt == maxBusyAttempts-1 {
			return err
		}
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (j *Journal) recordPageOnce(ctx context.Context, page depsync.PageRecord) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "storage: begin journal transaction failed")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	recordedAt := page.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	res, err := tx.StmtContext(ctx, j.pageStmt).ExecContext(ctx,
		string(page.Kind),
		page.RequestCursor,
		page.Cursor,
		boolToInt(page.MoreToFollow),
		len(page.Ops),
		recordedAt.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return pkgerrors.Wrap(err, "storage: insert journal page failed")
	}
	pageID, err := res.LastInsertId()
	if err != nil {
		return pkgerrors.Wrap(err, "storage: read journal page id failed")
	}
	opStmt := tx.StmtContext(ctx, j.opStmt)
	for _, op := range page.Ops {
		if _, err := opStmt.ExecContext(ctx, pageID, nullString(op.SerialNumber), op.OpType, op.Outcome); err != nil {
			return pkgerrors.Wrapf(err, "storage: insert journal op for %s failed", op.SerialNumber)
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "storage: commit journal page failed")
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
