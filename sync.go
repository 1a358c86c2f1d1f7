package depsync

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/httprunner/depsync/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SyncRecord is one entry of a sync page: the device attributes plus the
// operation to apply.
type SyncRecord struct {
	DeviceAttributes
	OpType string
	OpDate time.Time
}

// UnmarshalJSON decodes the attributes and the op_type/op_date pair. It is
// needed because DeviceAttributes has its own decoder.
func (r *SyncRecord) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.DeviceAttributes); err != nil {
		return err
	}
	var op struct {
		OpType string `json:"op_type"`
		OpDate string `json:"op_date"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return err
	}
	r.OpType = strings.ToLower(strings.TrimSpace(op.OpType))
	r.OpDate = parseTimestamp(r.SerialNumber, "op_date", op.OpDate)
	return nil
}

type listingRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type listingPage struct {
	Devices      []DeviceAttributes `json:"devices"`
	Cursor       string             `json:"cursor"`
	MoreToFollow bool               `json:"more_to_follow"`
}

type syncRequest struct {
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit,omitempty"`
}

type syncPage struct {
	Devices      []SyncRecord `json:"devices"`
	Cursor       string       `json:"cursor"`
	MoreToFollow bool         `json:"more_to_follow"`
}

// syncEngine walks the listing and sync protocols against a registry. It
// holds no cursor itself: the starting cursor is passed in and every consumed
// page hands its cursor to storeCursor.
type syncEngine struct {
	exec        *requestExecutor
	registry    *DeviceRegistry
	recorder    Recorder
	metrics     *metrics.Metrics
	storeCursor func(string)
	maxPages    int
	limit       int
	now         func() time.Time
}

// fetchAll pages through the full listing starting at cursor. Devices already
// registered are left untouched.
func (e *syncEngine) fetchAll(ctx context.Context, cursor string) error {
	for page := 1; ; page++ {
		var parsed listingPage
		req := listingRequest{Cursor: cursor, Limit: e.limit}
		if err := e.post(ctx, pathServerDevices, req, &parsed); err != nil {
			return err
		}

		ops := make([]OpRecord, 0, len(parsed.Devices))
		for _, attrs := range parsed.Devices {
			if attrs.SerialNumber == "" {
				log.Warn().Str("cursor", cursor).Msg("depsync: skip listed device without serial_number")
				ops = append(ops, OpRecord{OpType: OpListed, Outcome: OutcomeSkipped})
				e.metrics.IncSyncOp(OpListed, OutcomeSkipped)
				continue
			}
			outcome := OutcomeExists
			if _, created := e.registry.InsertIfAbsent(attrs.SerialNumber, attrs); created {
				outcome = OutcomeCreated
				log.Debug().Str("serial", attrs.SerialNumber).Msg("depsync: device listed")
			}
			ops = append(ops, OpRecord{SerialNumber: attrs.SerialNumber, OpType: OpListed, Outcome: outcome})
			e.metrics.IncSyncOp(OpListed, outcome)
		}

		requestCursor := cursor
		cursor = parsed.Cursor
		e.finishPage(ctx, PageRecord{
			Kind:          PageFetch,
			RequestCursor: requestCursor,
			Cursor:        cursor,
			MoreToFollow:  parsed.MoreToFollow,
			Ops:           ops,
		})
		log.Info().
			Int("page", page).
			Int("count", len(parsed.Devices)).
			Int("registered", e.registry.Len()).
			Bool("more_to_follow", parsed.MoreToFollow).
			Msg("depsync: listing page consumed")

		if !parsed.MoreToFollow {
			return nil
		}
		if e.maxPages > 0 && page >= e.maxPages {
			return errors.Wrapf(ErrPageLimitExceeded, "listing stopped after %d pages", page)
		}
	}
}

// syncSince replays the changes recorded since cursor and returns the
// registry size.
func (e *syncEngine) syncSince(ctx context.Context, cursor string) (int, error) {
	for page := 1; ; page++ {
		var parsed syncPage
		req := syncRequest{Limit: e.limit}
		if cursor != "" {
			c := cursor
			req.Cursor = &c
		}
		if err := e.post(ctx, pathDevicesSync, req, &parsed); err != nil {
			return e.registry.Len(), err
		}

		ops := make([]OpRecord, 0, len(parsed.Devices))
		for _, rec := range parsed.Devices {
			op := e.apply(rec)
			ops = append(ops, op)
			e.metrics.IncSyncOp(op.OpType, op.Outcome)
		}

		requestCursor := cursor
		cursor = parsed.Cursor
		e.finishPage(ctx, PageRecord{
			Kind:          PageSync,
			RequestCursor: requestCursor,
			Cursor:        cursor,
			MoreToFollow:  parsed.MoreToFollow,
			Ops:           ops,
		})
		log.Info().
			Int("page", page).
			Int("count", len(parsed.Devices)).
			Int("registered", e.registry.Len()).
			Bool("more_to_follow", parsed.MoreToFollow).
			Msg("depsync: sync page consumed")

		if !parsed.MoreToFollow {
			return e.registry.Len(), nil
		}
		if e.maxPages > 0 && page >= e.maxPages {
			return e.registry.Len(), errors.Wrapf(ErrPageLimitExceeded, "sync stopped after %d pages", page)
		}
	}
}

// apply mutates the registry for one sync record. Unknown serial numbers on
// deleted/modified records are tolerated: the local mirror may lag.
func (e *syncEngine) apply(rec SyncRecord) OpRecord {
	serial := rec.SerialNumber
	op := OpRecord{SerialNumber: serial, OpType: rec.OpType}
	if serial == "" {
		log.Warn().Str("op_type", rec.OpType).Msg("depsync: skip sync record without serial_number")
		op.Outcome = OutcomeSkipped
		return op
	}
	switch rec.OpType {
	case OpAdded:
		op.Outcome = OutcomeCreated
		if _, exists := e.registry.Find(serial); exists {
			op.Outcome = OutcomeReplaced
		}
		e.registry.Insert(serial, rec.DeviceAttributes)
	case OpDeleted:
		op.Outcome = OutcomeApplied
		if !e.registry.Remove(serial) {
			op.Outcome = OutcomeMissing
			log.Debug().Str("serial", serial).Msg("depsync: deleted device was not registered")
		}
	case OpModified:
		op.Outcome = OutcomeApplied
		if !e.registry.Update(serial, rec.DeviceAttributes) {
			op.Outcome = OutcomeMissing
			log.Warn().Str("serial", serial).Msg("depsync: modified device not registered, skipping")
		}
	default:
		op.Outcome = OutcomeSkipped
		log.Warn().Str("serial", serial).Str("op_type", rec.OpType).Msg("depsync: unknown sync operation, skipping")
	}
	return op
}

func (e *syncEngine) finishPage(ctx context.Context, page PageRecord) {
	if e.storeCursor != nil {
		e.storeCursor(page.Cursor)
	}
	page.RecordedAt = e.now()
	e.metrics.IncPage(string(page.Kind))
	if err := e.recorder.RecordPage(ctx, page); err != nil {
		log.Error().Err(err).Str("kind", string(page.Kind)).Msg("depsync: record page failed")
	}
}

func (e *syncEngine) post(ctx context.Context, path string, payload, out any) error {
	resp, err := e.exec.execute(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.Wrapf(err, "depsync: decode %s response", path)
	}
	return nil
}
