package main

import (
	"github.com/httprunner/depsync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Define and assign enrollment profiles",
	}
	cmd.AddCommand(newProfileAddCmd(), newProfileAssignCmd())
	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Define a profile from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			profile, err := depsync.LoadProfile(file)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.client.AddProfile(cmd.Context(), profile)
			if err != nil {
				return err
			}
			return printJSON(stdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Profile definition (.json, .yaml or .yml)")
	return cmd
}

func newProfileAssignCmd() *cobra.Command {
	var profileUUID string
	cmd := &cobra.Command{
		Use:   "assign --uuid PROFILE_UUID SERIAL [SERIAL...]",
		Short: "Assign a profile to devices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.client.AssignProfile(cmd.Context(), profileUUID, splitSerials(args))
			if err != nil {
				return err
			}
			return printJSON(stdout(), resp)
		},
	}
	cmd.Flags().StringVar(&profileUUID, "uuid", "", "Profile UUID returned by profile add")
	return cmd
}
