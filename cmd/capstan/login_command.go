package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"capstan/internal/auth"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in via the GitHub device flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.newAuthenticator()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Resume(runCtx); err != nil {
				if errors.Is(err, auth.ErrVerificationUnavailable) {
					return err
				}
				// An invalid stored credential falls through to a fresh login.
			}

			out := cmd.OutOrStdout()
			if snapshot := a.Session(); snapshot.SignedIn() {
				fmt.Fprintf(out, "Already signed in as %s\n", identityLabel(*snapshot.Identity))
				return nil
			}

			flow, err := a.StartLogin(runCtx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "First, copy your one-time code: %s\n", flow.UserCode)
			fmt.Fprintf(out, "Then visit %s to authorize this device.\n", flow.VerificationURI)
			fmt.Fprintf(out, "Waiting for approval (expires %s, Ctrl-C to cancel)...\n",
				flow.ExpiresAt.Local().Format("15:04:05"))

			snapshot, err := a.Await(runCtx)
			if err != nil {
				a.CancelLogin()
				fmt.Fprintln(out, "Login cancelled")
				return err
			}

			switch snapshot.Status {
			case auth.StatusSignedIn:
				fmt.Fprintf(out, "Signed in as %s\n", identityLabel(*snapshot.Identity))
				return nil
			default:
				return errors.New(snapshot.LastError)
			}
		},
	}
}

func identityLabel(identity auth.Identity) string {
	if identity.DisplayName != "" && identity.DisplayName != identity.Login {
		return fmt.Sprintf("%s (%s)", identity.Login, identity.DisplayName)
	}
	return identity.Login
}
