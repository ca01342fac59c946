package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credential and device-flow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.newAuthenticator()
			if err != nil {
				return err
			}
			if err := a.Logout(); err != nil {
				return fmt.Errorf("clear session state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
