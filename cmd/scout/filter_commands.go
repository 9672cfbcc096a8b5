package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scout/internal/filters"
	"scout/internal/store"
)

func newFilterCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage quality filters",
	}
	cmd.AddCommand(newFilterAddCommand(ctx))
	cmd.AddCommand(newFilterListCommand(ctx))
	cmd.AddCommand(newFilterActiveCommand(ctx, "enable", true))
	cmd.AddCommand(newFilterActiveCommand(ctx, "disable", false))
	return cmd
}

func newFilterAddCommand(ctx *commandContext) *cobra.Command {
	var (
		kind       string
		sourceType string
		priority   int
		advisory   bool
		configJSON string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := filters.ValidateConfig(kind, configJSON); err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			filter, err := st.CreateFilter(cmd.Context(), store.NewFilter{
				Name:       args[0],
				Kind:       kind,
				SourceType: sourceType,
				Priority:   priority,
				Advisory:   advisory,
				Config:     configJSON,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Registered filter %d (%s, kind %s)\n", filter.ID, filter.Name, filter.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter kind: keyword, regex, score_threshold, source_specific")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Restrict the filter to one source type (empty applies to all)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Evaluation priority, highest first")
	cmd.Flags().BoolVar(&advisory, "advisory", false, "Route failures to manual review instead of rejecting")
	cmd.Flags().StringVar(&configJSON, "config", "", "Filter configuration JSON")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func newFilterListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List filters with pass statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListFilters(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No filters registered.")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, f := range list {
				scope := f.SourceType
				if scope == "" {
					scope = "all"
				}
				mode := "blocking"
				if f.Advisory {
					mode = "advisory"
				}
				rows = append(rows, []string{
					strconv.FormatInt(f.ID, 10),
					f.Name,
					f.Kind,
					scope,
					strconv.Itoa(f.Priority),
					mode,
					activeLabel(f.Active),
					strconv.FormatInt(f.TotalEvaluated, 10),
					strconv.FormatInt(f.TotalPassed, 10),
					passRate(f),
				})
			}
			fmt.Println(renderTable(
				[]string{"ID", "Name", "Kind", "Scope", "Priority", "Mode", "State", "Evaluated", "Passed", "Pass Rate"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newFilterActiveCommand(ctx *commandContext, verb string, active bool) *cobra.Command {
	short := "Enable a filter"
	if !active {
		short = "Disable a filter without losing its statistics"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid filter id %q", args[0])
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetFilterActive(cmd.Context(), id, active); err != nil {
				return err
			}
			fmt.Printf("Filter %d %sd\n", id, verb)
			return nil
		},
	}
}

func passRate(f *store.Filter) string {
	if f.TotalEvaluated == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", float64(f.TotalPassed)/float64(f.TotalEvaluated)*100)
}
