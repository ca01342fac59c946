package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/statusdoc"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show pipeline detail for one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			o, closeJournal, err := ctx.newOrchestrator(a)
			if err != nil {
				return err
			}
			defer closeJournal()

			doc, err := o.LoadStatusDocument(cmd.Context())
			if err != nil {
				return err
			}

			videoID := strings.TrimSpace(args[0])
			video, ok := doc.Video(videoID)
			if !ok {
				return fmt.Errorf("video %q not found in the status document", videoID)
			}

			if jsonOutput {
				return writeJSON(cmd, video)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "%s\n", video.Title)
			fmt.Fprintf(out, "ID:       %s\n", video.ID)
			if video.ChannelTitle != "" {
				fmt.Fprintf(out, "Channel:  %s\n", video.ChannelTitle)
			}
			if video.SourceURL != "" {
				fmt.Fprintf(out, "Source:   %s\n", video.SourceURL)
			}
			if video.DurationSeconds > 0 {
				fmt.Fprintf(out, "Duration: %s\n", formatDuration(video.DurationSeconds))
			}
			fmt.Fprintln(out)

			headers := []string{"STEP", "STATUS", "UPDATED", "NOTES"}
			rows := [][]string{
				stepRow("download", video.Download, colorize),
				stepRow("transcription", video.Transcription, colorize),
				splitRow(video.Split, colorize),
			}
			for _, lang := range []string{"ar", "tr"} {
				step, _ := video.Translation(lang)
				rows = append(rows, stepRow("translation ("+lang+")", step, colorize))
			}
			fmt.Fprintln(out, renderTable(headers, rows, nil))

			if len(video.History) > 0 {
				fmt.Fprintln(out)
				historyHeaders := []string{"TIME", "EVENT", "STATUS", "WORKFLOW", "ACTOR"}
				historyRows := make([][]string, 0, len(video.History))
				for _, entry := range video.History {
					historyRows = append(historyRows, []string{
						formatTimestamp(entry.Timestamp),
						entry.Event,
						entry.Status,
						entry.Workflow,
						entry.Actor,
					})
				}
				fmt.Fprintln(out, renderTable(historyHeaders, historyRows, nil))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the video record as JSON")
	return cmd
}

func stepRow(label string, step statusdoc.Step, colorize bool) []string {
	return []string{label, stepBadge(step, colorize), formatTimestamp(step.UpdatedAt), step.Notes}
}

func splitRow(split statusdoc.SplitStep, colorize bool) []string {
	notes := split.Notes
	if count := len(split.Parts); count > 0 {
		parts := fmt.Sprintf("%d parts", count)
		if notes != "" {
			notes = parts + "; " + notes
		} else {
			notes = parts
		}
	}
	return []string{"split", stepBadge(split.Step, colorize), formatTimestamp(split.UpdatedAt), notes}
}
