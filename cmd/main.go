package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/httprunner/depsync/internal/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "depsync",
	Short: "Mirror the device enrollment roster of an account",
	Long: `depsync talks to the device enrollment service with the account's OAuth
server token: it lists and syncs enrolled devices, defines and assigns
enrollment profiles, and can serve the mirrored roster over HTTP. Credentials
and endpoints come from the environment (a .env file is loaded when present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := configureLogging(rootLogLevel, rootJSONLog); err != nil {
			return err
		}
		if path := env.LoadedPath(); path != "" {
			log.Debug().Str("dotenv", path).Msg("environment loaded")
		}
		return nil
	},
}

var (
	rootLogLevel string
	rootJSONLog  bool
	rootJournal  string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&rootJSONLog, "json-log", false, "Write logs as JSON instead of console output")
	rootCmd.PersistentFlags().StringVar(&rootJournal, "journal", "", "SQLite journal path overriding $DEP_JOURNAL_PATH")
	rootCmd.AddCommand(
		newAccountCmd(),
		newDevicesCmd(),
		newSyncCmd(),
		newProfileCmd(),
		newServeCmd(),
		newJournalCmd(),
	)
	if err := env.Ensure(); err != nil {
		log.Warn().Err(err).Msg("load .env failed")
	}
}

func configureLogging(level string, jsonOutput bool) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("depsync command failed")
	}
}
