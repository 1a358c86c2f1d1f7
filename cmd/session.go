package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/httprunner/depsync"
	"github.com/httprunner/depsync/internal/config"
	"github.com/httprunner/depsync/internal/metrics"
	"github.com/httprunner/depsync/pkg/feishu"
	"github.com/httprunner/depsync/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type sessionOptions struct {
	// resume starts syncing from the journal's last cursor when none is configured.
	resume  bool
	metrics bool
}

// cliSession bundles the client with the optional journal and metrics.
type cliSession struct {
	client  *depsync.Client
	journal *storage.Journal
	metrics *metrics.Metrics
}

func openSession(ctx context.Context, opts sessionOptions) (*cliSession, error) {
	cfg, err := depsync.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	s := &cliSession{}
	if path := journalPath(); path != "" {
		journal, err := storage.OpenJournal(path)
		if err != nil {
			return nil, err
		}
		s.journal = journal
		cfg.Recorder = journal
	}
	if opts.resume && cfg.Cursor == "" {
		if s.journal == nil {
			s.Close()
			return nil, errors.New("--resume needs a journal (--journal or $DEP_JOURNAL_PATH)")
		}
		cursor, err := s.journal.LastCursor(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		cfg.Cursor = cursor
		log.Info().Str("cursor", cursor).Msg("resuming from journal cursor")
	}
	if opts.metrics {
		s.metrics = metrics.New()
		cfg.Metrics = s.metrics
	}
	client, err := depsync.NewClient(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = client
	return s, nil
}

func journalPath() string {
	return firstNonEmpty(rootJournal, config.String(depsync.EnvJournalPath, ""))
}

func (s *cliSession) Close() {
	if s == nil || s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		log.Warn().Err(err).Msg("close journal failed")
	}
}

// rosterSyncer keeps the client's roster complete: every pass lists the full
// roster until one listing succeeds, then applies incremental changes. A
// cursor configured before the first listing is restored afterwards so the
// changes since that cursor are replayed on top of the listing.
type rosterSyncer struct {
	client      *depsync.Client
	exporter    *feishu.RosterClient
	startCursor string

	mu     sync.Mutex
	listed bool
}

func newRosterSyncer(client *depsync.Client, exporter *feishu.RosterClient) *rosterSyncer {
	return &rosterSyncer{client: client, exporter: exporter, startCursor: client.Cursor()}
}

func (r *rosterSyncer) SyncDevices(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, err := r.pass(ctx)
	if err != nil {
		return count, err
	}
	if r.exporter != nil {
		if _, err := r.exporter.ExportRoster(ctx, r.client.Devices(), timeNow()); err != nil {
			return count, errors.Wrap(err, "export roster")
		}
	}
	return count, nil
}

func (r *rosterSyncer) pass(ctx context.Context) (int, error) {
	if r.listed {
		return r.client.SyncDevices(ctx)
	}
	// A listing that failed partway restarts from the first page; already
	// listed devices are kept.
	devices, err := r.client.FetchDevices(ctx)
	if err != nil {
		return r.client.DeviceCount(), err
	}
	r.listed = true
	if r.startCursor == "" {
		return len(devices), nil
	}
	log.Info().
		Str("cursor", r.startCursor).
		Int("devices", len(devices)).
		Msg("roster listed, replaying changes since configured cursor")
	r.client.SetCursor(r.startCursor)
	return r.client.SyncDevices(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdout() io.Writer {
	return os.Stdout
}

func splitSerials(values []string) []string {
	var out []string
	for _, val := range values {
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
