package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"scout/internal/store"
)

func newSourceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage monitored sources",
	}
	cmd.AddCommand(newSourceAddCommand(ctx))
	cmd.AddCommand(newSourceListCommand(ctx))
	cmd.AddCommand(newSourceActiveCommand(ctx, "enable", true))
	cmd.AddCommand(newSourceActiveCommand(ctx, "disable", false))
	return cmd
}

func newSourceAddCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceType    string
		baseURL       string
		frequency     time.Duration
		weight        float64
		rateLimit     int64
		adapterConfig string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			source, err := st.CreateSource(cmd.Context(), store.NewSource{
				Type:             sourceType,
				Name:             args[0],
				BaseURL:          baseURL,
				AdapterConfig:    adapterConfig,
				CheckFrequency:   frequency,
				Weight:           weight,
				RateLimitPerHour: rateLimit,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Registered source %d (%s/%s), first check due now\n", source.ID, source.Type, source.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceType, "type", "rss", "Source adapter type")
	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL the adapter fetches from")
	cmd.Flags().DurationVar(&frequency, "frequency", time.Hour, "Check frequency")
	cmd.Flags().Float64Var(&weight, "weight", 1.0, "Source weight applied to quality scores (0-2)")
	cmd.Flags().Int64Var(&rateLimit, "rate-limit", 0, "Max checks per hour (0 uses the configured default)")
	cmd.Flags().StringVar(&adapterConfig, "adapter-config", "", "Adapter configuration JSON")

	return cmd
}

func newSourceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sources, err := st.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				fmt.Println("No sources registered.")
				return nil
			}

			rows := make([][]string, 0, len(sources))
			for _, s := range sources {
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10),
					s.Type,
					s.Name,
					activeLabel(s.Active),
					s.CheckFrequency.String(),
					fmt.Sprintf("%.2f", s.Weight),
					strconv.Itoa(s.ConsecutiveFailures),
					formatTimePtr(s.LastCheckedAt),
					formatTime(s.NextCheckAt),
				})
			}
			fmt.Println(renderTable(
				[]string{"ID", "Type", "Name", "State", "Frequency", "Weight", "Failures", "Last Check", "Next Check"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newSourceActiveCommand(ctx *commandContext, verb string, active bool) *cobra.Command {
	short := "Reactivate a source and reset its failure count"
	if !active {
		short = "Deactivate a source without deleting it"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetSourceActive(cmd.Context(), id, active); err != nil {
				return err
			}
			fmt.Printf("Source %d %sd\n", id, verb)
			return nil
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "disabled"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}
