package depsync

import (
	"context"
	"time"
)

// PageKind distinguishes listing pages from sync pages.
type PageKind string

const (
	PageFetch PageKind = "fetch"
	PageSync  PageKind = "sync"
)

// Operation types carried by records.
const (
	OpListed   = "listed"
	OpAdded    = "added"
	OpDeleted  = "deleted"
	OpModified = "modified"
)

// Outcomes of applying one record to the registry.
const (
	OutcomeCreated  = "created"
	OutcomeExists   = "exists"
	OutcomeApplied  = "applied"
	OutcomeReplaced = "replaced"
	OutcomeMissing  = "missing"
	OutcomeSkipped  = "skipped"
)

// OpRecord describes how one device record was applied.
type OpRecord struct {
	SerialNumber string
	OpType       string
	Outcome      string
}

// PageRecord summarises one consumed page.
type PageRecord struct {
	Kind          PageKind
	RequestCursor string
	Cursor        string
	MoreToFollow  bool
	Ops           []OpRecord
	RecordedAt    time.Time
}

// Recorder receives every consumed page, e.g. to keep an audit journal.
// Recorder failures are logged and never abort a walk.
type Recorder interface {
	RecordPage(ctx context.Context, page PageRecord) error
}

type noopRecorder struct{}

func (noopRecorder) RecordPage(context.Context, PageRecord) error { return nil }
