package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history [video-id]",
		Short: "List locally recorded dispatch attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []journal.Entry
			if len(args) == 1 {
				entries, err = store.ForVideo(cmd.Context(), strings.TrimSpace(args[0]))
			} else {
				entries, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No dispatches recorded yet")
				return nil
			}

			headers := []string{"TIME", "EVENT", "VIDEO", "ACTOR", "OUTCOME", "DETAIL"}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					formatTimestamp(entry.CreatedAt),
					entry.Event,
					entry.VideoID,
					entry.Actor,
					entry.Outcome,
					truncate(entry.Detail, 60),
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list")
	return cmd
}
