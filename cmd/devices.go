package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/httprunner/depsync"
	"github.com/httprunner/depsync/pkg/feishu"
	"github.com/httprunner/depsync/pkg/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type devicesOptions struct {
	jsonOutput bool
	xlsxPath   string
	feishu     bool
	status     string
}

func newDevicesCmd() *cobra.Command {
	opts := &devicesOptions{}
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List every device enrolled in the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print devices as JSON")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Also write the roster to this Excel workbook")
	cmd.Flags().BoolVar(&opts.feishu, "feishu", false, "Also upsert the roster into the configured Feishu bitable")
	cmd.Flags().StringVar(&opts.status, "profile-status", "", "Only print devices with this profile status")
	return cmd
}

func runDevices(cmd *cobra.Command, opts *devicesOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	devices, err := s.client.FetchDevices(ctx)
	if err != nil {
		return err
	}
	now := timeNow()
	log.Info().Int("devices", len(devices)).Str("cursor", s.client.Cursor()).Msg("device listing finished")

	if opts.xlsxPath != "" {
		if err := report.WriteRosterXLSX(opts.xlsxPath, devices, now); err != nil {
			return err
		}
		log.Info().Str("path", opts.xlsxPath).Msg("roster workbook written")
	}
	if opts.feishu {
		roster, err := feishu.NewRosterClientFromEnv()
		if err != nil {
			return err
		}
		res, err := roster.ExportRoster(ctx, devices, now)
		if err != nil {
			return err
		}
		log.Info().Int("created", res.Created).Int("updated", res.Updated).Msg("roster exported to feishu")
	}

	if opts.status != "" {
		devices = filterByStatus(devices, depsync.ProfileStatus(opts.status))
	}
	if opts.jsonOutput {
		return printJSON(stdout(), devices)
	}
	return printDeviceTable(stdout(), devices)
}

func filterByStatus(devices []depsync.Device, status depsync.ProfileStatus) []depsync.Device {
	out := devices[:0:0]
	for _, d := range devices {
		if d.ProfileStatus == status {
			out = append(out, d)
		}
	}
	return out
}

func printDeviceTable(w io.Writer, devices []depsync.Device) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tMODEL\tOS\tPROFILE STATUS\tPROFILE UUID")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.SerialNumber, d.Model, d.OS, d.ProfileStatus, d.ProfileUUID)
	}
	return tw.Flush()
}
