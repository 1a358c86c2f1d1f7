package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/httprunner/depsync"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Entry is one journaled page.
type Entry struct {
	ID            int64
	Kind          depsync.PageKind
	RequestCursor string
	Cursor        string
	MoreToFollow  bool
	OpCount       int
	RecordedAt    time.Time
}

// DeviceEvent is one journaled outcome for a serial number.
type DeviceEvent struct {
	PageID     int64
	Kind       depsync.PageKind
	OpType     string
	Outcome    string
	RecordedAt time.Time
}

// Entries returns the most recent pages, newest first. A non-positive limit
// uses a default of 50.
func (j *Journal) Entries(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, pkgerrors.New("storage: journal not opened")
	}
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	query := fmt.Sprintf(`SELECT id, kind, request_cursor, cursor, more_to_follow, op_count, recorded_at
		FROM %s ORDER BY id DESC LIMIT ?`, quoteIdent(pagesTableName))
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query journal entries failed")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry         Entry
			kind          string
			requestCursor sql.NullString
			cursor        sql.NullString
			more          int
			recordedAt    string
		)
		if err := rows.Scan(&entry.ID, &kind, &requestCursor, &cursor, &more, &entry.OpCount, &recordedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan journal entry failed")
		}
		entry.Kind = depsync.PageKind(kind)
		entry.RequestCursor = requestCursor.String
		entry.Cursor = cursor.String
		entry.MoreToFollow = more != 0
		entry.RecordedAt = parseRecordedAt(recordedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate journal entries failed")
	}
	return entries, nil
}

// LastCursor returns the cursor of the latest journaled page, or "" when the
// journal is empty.
func (j *Journal) LastCursor(ctx context.Context) (string, error) {
	if j == nil || j.db == nil {
		return "", pkgerrors.New("storage: journal not opened")
	}
	query := fmt.Sprintf("SELECT cursor FROM %s ORDER BY id DESC LIMIT 1", quoteIdent(pagesTableName))
	var cursor sql.NullString
	err := j.db.QueryRowContext(ctx, query).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "storage: query last cursor failed")
	}
	return cursor.String, nil
}

// DeviceHistory returns the journaled outcomes for serialNumber, newest first.
func (j *Journal) DeviceHistory(ctx context.Context, serialNumber string, limit int) ([]DeviceEvent, error) {
	if j == nil || j.db == nil {
		return nil, pkgerrors.New("storage: journal not opened")
	}
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	query := fmt.Sprintf(`SELECT p.id, p.kind, o.op_type, o.outcome, p.recorded_at
		FROM %s o JOIN %s p ON p.id = o.page_id
		WHERE o.serial_number = ?
		ORDER BY o.id DESC LIMIT ?`, quoteIdent(opsTableName), quoteIdent(pagesTableName))
	rows, err := j.db.QueryContext(ctx, query, serialNumber, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query device history failed")
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		var (
			ev         DeviceEvent
			kind       string
			recordedAt string
		)
		if err := rows.Scan(&ev.PageID, &kind, &ev.OpType, &ev.Outcome, &recordedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan device history failed")
		}
		ev.Kind = depsync.PageKind(kind)
		ev.RecordedAt = parseRecordedAt(recordedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate device history failed")
	}
	return events, nil
}

func parseRecordedAt(raw string) time.Time {
	ts, err := time.Parse(recordedAtLayout, raw)
	if err != nil {
		log.Warn().Str("recorded_at", raw).Msg("storage: unparsable journal timestamp")
		return time.Time{}
	}
	return ts
}
