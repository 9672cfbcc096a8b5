package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent monitoring log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.RecentLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No log entries.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				source := "-"
				if e.SourceID != nil {
					source = strconv.FormatInt(*e.SourceID, 10)
				}
				detail := e.Message
				if e.ErrorCode != "" {
					detail = fmt.Sprintf("%s [%s]", detail, e.ErrorCode)
				}
				rows = append(rows, []string{
					formatTime(e.CreatedAt),
					e.Level,
					source,
					strconv.Itoa(e.Discovered),
					strconv.Itoa(e.Filtered),
					e.Duration.Round(time.Millisecond).String(),
					detail,
				})
			}
			fmt.Println(renderTable(
				[]string{"Time", "Level", "Source", "Found", "Filtered", "Duration", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")

	return cmd
}
