package main

import (
	"github.com/spf13/cobra"
)

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Print the account details reported by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			details, err := s.client.AccountDetails(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stdout(), details)
		},
	}
}
