package main

import (
	"time"

	"github.com/httprunner/depsync/internal/worker"
	"github.com/httprunner/depsync/pkg/feishu"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type syncOptions struct {
	once     bool
	resume   bool
	feishu   bool
	interval time.Duration
}

func newSyncCmd() *cobra.Command {
	opts := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply device changes since the last cursor",
		Long: `sync lists the full roster and then applies incremental changes. When a
starting cursor is configured ($DEP_CURSOR or --resume), the changes since that
cursor are replayed after the listing. Without --once it keeps polling on
--interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.once, "once", false, "Run a single pass and exit")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Start from the journal's last cursor when $DEP_CURSOR is unset")
	cmd.Flags().BoolVar(&opts.feishu, "feishu", false, "Upsert the roster into the configured Feishu bitable after each pass")
	cmd.Flags().DurationVar(&opts.interval, "interval", worker.DefaultSyncInterval, "Polling interval")
	return cmd
}

func runSync(cmd *cobra.Command, opts *syncOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{resume: opts.resume})
	if err != nil {
		return err
	}
	defer s.Close()

	var exporter *feishu.RosterClient
	if opts.feishu {
		if exporter, err = feishu.NewRosterClientFromEnv(); err != nil {
			return err
		}
	}
	syncer := newRosterSyncer(s.client, exporter)
	w, err := worker.NewSyncWorker(syncer, worker.SyncWorkerConfig{Interval: opts.interval})
	if err != nil {
		return err
	}
	if opts.once {
		if err := w.ProcessOnce(ctx); err != nil {
			return err
		}
		log.Info().Int("devices", s.client.DeviceCount()).Str("cursor", s.client.Cursor()).Msg("sync finished")
		return nil
	}
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Str("cursor", s.client.Cursor()).Msg("sync stopped")
	return nil
}
