// Package worker runs the periodic device sync and its companions.
package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultSyncInterval is used when SyncWorkerConfig.Interval is not positive.
const DefaultSyncInterval = 5 * time.Minute

// Syncer applies pending changes and returns the roster size.
type Syncer interface {
	SyncDevices(ctx context.Context) (int, error)
}

// SyncWorkerConfig configures a SyncWorker.
type SyncWorkerConfig struct {
	Interval time.Duration
	// OnResult is called after every pass, e.g. to update a status tracker.
	OnResult func(at time.Time, count int, err error)
	Now      func() time.Time
}

// SyncWorker calls SyncDevices on a fixed interval. A failed pass is logged
// and retried on the next tick; the cursor is kept by the syncer.
type SyncWorker struct {
	syncer   Syncer
	interval time.Duration
	onResult func(time.Time, int, error)
	now      func() time.Time
}

// NewSyncWorker builds a worker around syncer.
func NewSyncWorker(syncer Syncer, cfg SyncWorkerConfig) (*SyncWorker, error) {
	if syncer == nil {
		return nil, errors.New("sync worker: syncer is nil")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SyncWorker{syncer: syncer, interval: interval, onResult: cfg.OnResult, now: now}, nil
}

// Run syncs immediately and then on every tick until ctx is done.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("sync worker: nil instance")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_ = w.ProcessOnce(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce executes a single sync pass.
func (w *SyncWorker) ProcessOnce(ctx context.Context) error {
	if w == nil {
		return errors.New("sync worker: nil instance")
	}
	start := w.now()
	count, err := w.syncer.SyncDevices(ctx)
	if w.onResult != nil {
		w.onResult(start, count, err)
	}
	if err != nil {
		log.Error().Err(err).Int("devices", count).Msg("sync worker pass failed")
		return err
	}
	log.Info().
		Int("devices", count).
		Dur("elapsed", w.now().Sub(start)).
		Msg("sync worker pass finished")
	return nil
}
