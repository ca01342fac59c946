package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/auth"
)

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.newAuthenticator()
			if err != nil {
				return err
			}
			if err := a.Resume(cmd.Context()); err != nil {
				if errors.Is(err, auth.ErrVerificationUnavailable) {
					return err
				}
			}

			identity, ok := a.Identity()
			if !ok {
				return errors.New("not signed in (run `capstan login`)")
			}

			if jsonOutput {
				return writeJSON(cmd, identity)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s\n", identityLabel(identity))
			if identity.ProfileURL != "" {
				fmt.Fprintf(out, "Profile: %s\n", identity.ProfileURL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}
