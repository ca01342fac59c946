package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/catalog"
	"capstan/internal/dispatch"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceURL string
		channelID string
		resetStep string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow> <video-id>...",
		Short: "Trigger a pipeline workflow for one or more videos",
		Long: "Trigger a pipeline workflow for one or more videos.\n\n" +
			"Workflows: " + catalog.KindNames() + ".\n" +
			"With multiple videos the batch is filtered to targets the workflow\n" +
			"still applies to, fanned out concurrently, and followed by a single\n" +
			"status refresh.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := catalog.Parse(args[0])
			if err != nil {
				return err
			}
			videoIDs := args[1:]

			overrides, err := buildOverrides(workflow.Kind, sourceURL, channelID, resetStep)
			if err != nil {
				return err
			}

			a, err := ctx.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			o, closeJournal, err := ctx.newOrchestrator(a)
			if err != nil {
				return err
			}
			defer closeJournal()

			// The first fetch primes eligibility checks and payload
			// derivation; a video can still be dispatched before it appears
			// in the document (fresh downloads).
			if _, err := o.LoadStatusDocument(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(videoIDs) == 1 {
				if err := o.RunWorkflow(cmd.Context(), workflow.Kind, videoIDs[0], overrides); err != nil {
					return err
				}
				fmt.Fprintf(out, "Triggered %s for %s\n", workflow.Label, videoIDs[0])
				return nil
			}

			triggered, err := o.RunBulkWorkflow(cmd.Context(), workflow.Kind, videoIDs, overrides)
			if triggered == 0 && err == nil {
				fmt.Fprintf(out, "No videos need %s right now\n", workflow.Label)
				return nil
			}
			var batch *dispatch.BatchError
			if errors.As(err, &batch) {
				fmt.Fprintf(out, "Triggered %s for %d of %d videos\n",
					workflow.Label, triggered-len(batch.Failures), len(videoIDs))
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Triggered %s for %d of %d videos\n", workflow.Label, triggered, len(videoIDs))
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceURL, "url", "", "Source URL override for download")
	cmd.Flags().StringVar(&channelID, "channel", "", "Channel id override for download")
	cmd.Flags().StringVar(&resetStep, "step", "", "Step to reset (reset-step only)")
	return cmd
}

// buildOverrides maps run flags onto client_payload overrides, rejecting
// flags that do not apply to the chosen workflow.
func buildOverrides(kind catalog.Kind, sourceURL, channelID, resetStep string) (map[string]any, error) {
	overrides := map[string]any{}

	sourceURL = strings.TrimSpace(sourceURL)
	channelID = strings.TrimSpace(channelID)
	resetStep = strings.TrimSpace(resetStep)

	if sourceURL != "" || channelID != "" {
		if kind != catalog.KindDownload {
			return nil, fmt.Errorf("--url and --channel only apply to the download workflow")
		}
		if sourceURL != "" {
			overrides["sourceUrl"] = sourceURL
		}
		if channelID != "" {
			overrides["channelId"] = channelID
		}
	}

	switch {
	case kind == catalog.KindResetStep && resetStep == "":
		return nil, errors.New("reset-step requires --step")
	case kind != catalog.KindResetStep && resetStep != "":
		return nil, errors.New("--step only applies to the reset-step workflow")
	case resetStep != "":
		overrides["resetStep"] = resetStep
	}

	if len(overrides) == 0 {
		return nil, nil
	}
	return overrides, nil
}
