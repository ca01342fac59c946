package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline progress for every video",
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

			if jsonOutput {
				return writeJSON(cmd, doc)
			}

			out := cmd.OutOrStdout()
			if len(doc.Videos) == 0 {
				fmt.Fprintln(out, "No videos in the pipeline yet")
				return nil
			}

			colorize := shouldColorize(out)
			headers := []string{"ID", "TITLE", "DOWNLOAD", "TRANSCRIBE", "SPLIT", "AR", "TR", "DURATION"}
			rows := make([][]string, 0, len(doc.Videos))
			for _, video := range doc.Videos {
				ar, _ := video.Translation("ar")
				tr, _ := video.Translation("tr")
				rows = append(rows, []string{
					video.ID,
					truncate(video.Title, 42),
					stepBadge(video.Download, colorize),
					stepBadge(video.Transcription, colorize),
					stepBadge(video.Split.Step, colorize),
					stepBadge(ar, colorize),
					stepBadge(tr, colorize),
					formatDuration(video.DurationSeconds),
				})
			}
			aligns := []columnAlignment{
				alignLeft, alignLeft, alignLeft, alignLeft,
				alignLeft, alignLeft, alignLeft, alignRight,
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))

			totals := doc.Analytics.Totals
			fmt.Fprintf(out, "%d videos: %d downloaded, %d transcribed, %d split, %d translated (ar), %d translated (tr)\n",
				totals.Videos, totals.Downloaded, totals.Transcribed, totals.Split,
				totals.TranslatedAr, totals.TranslatedTr)
			if len(doc.Analytics.ActiveJobs) > 0 {
				fmt.Fprintf(out, "Active jobs: %v\n", doc.Analytics.ActiveJobs)
			}
			if !doc.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "Document updated %s\n", formatTimestamp(doc.UpdatedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the raw status document as JSON")
	return cmd
}
