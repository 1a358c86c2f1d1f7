package main

import (
	"context"
	"net/http"
	"time"

	"github.com/httprunner/depsync/internal/httpapi"
	"github.com/httprunner/depsync/internal/worker"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownGracePeriod = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the roster in sync and serve it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, interval)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().DurationVar(&interval, "interval", worker.DefaultSyncInterval, "Sync polling interval")
	return cmd
}

func runServe(ctx context.Context, addr string, interval time.Duration) error {
	s, err := openSession(ctx, sessionOptions{metrics: true})
	if err != nil {
		return err
	}
	defer s.Close()

	tracker := &httpapi.SyncTracker{}
	syncWorker, err := worker.NewSyncWorker(newRosterSyncer(s.client, nil), worker.SyncWorkerConfig{
		Interval: interval,
		OnResult: func(at time.Time, _ int, err error) { tracker.Record(at, err) },
	})
	if err != nil {
		return err
	}
	handler := httpapi.NewHandler(log.Logger, s.client, tracker, s.metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sg := worker.NewSafeGroup(ctx)
	sg.GoSafe("sync-worker", syncWorker.Run)
	sg.GoSafe("http-server", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("http server listening")
			errCh <- server.ListenAndServe()
		}()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "http server")
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("http server shutdown failed")
			}
			return ctx.Err()
		}
	})

	err = sg.WaitOrInterrupt(shutdownGracePeriod)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("serve stopped")
	return nil
}
