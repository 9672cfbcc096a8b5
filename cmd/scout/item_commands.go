package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scout/internal/pipeline"
	"scout/internal/store"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect and advance discovered items",
	}
	cmd.AddCommand(newItemListCommand(ctx))
	cmd.AddCommand(newItemShowCommand(ctx))
	cmd.AddCommand(newItemReviewCommand(ctx))
	cmd.AddCommand(newItemPublishCommand(ctx))
	cmd.AddCommand(newItemRedriveCommand(ctx))
	cmd.AddCommand(newItemPurgeCommand(ctx))
	return cmd
}

func newItemListCommand(ctx *commandContext) *cobra.Command {
	var (
		stageFlag string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stages []store.Stage
			if stageFlag != "" {
				stage, ok := store.ParseStage(stageFlag)
				if !ok {
					return fmt.Errorf("unknown stage %q", stageFlag)
				}
				stages = append(stages, stage)
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.ListItems(cmd.Context(), limit, stages...)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No items.")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				title := item.Title
				if len(title) > 60 {
					title = title[:57] + "..."
				}
				score := "-"
				if item.QualityScore > 0 {
					score = fmt.Sprintf("%.2f", item.QualityScore)
				}
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					string(item.Stage),
					item.SourceType,
					score,
					title,
					formatTime(item.DiscoveredAt),
				})
			}
			fmt.Println(renderTable(
				[]string{"ID", "Stage", "Source", "Score", "Title", "Discovered"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&stageFlag, "stage", "", "Only show items in this stage")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum items to show")

	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item and its pipeline record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			item, err := st.GetItemByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Item %d (%s)\n", item.ID, item.Stage)
			fmt.Printf("  Source:      %s (source %d)\n", item.SourceType, item.SourceID)
			fmt.Printf("  Title:       %s\n", item.Title)
			if item.URL != "" {
				fmt.Printf("  URL:         %s\n", item.URL)
			}
			if item.Author != "" {
				fmt.Printf("  Author:      %s\n", item.Author)
			}
			if item.PublishedAt != nil {
				fmt.Printf("  Published:   %s\n", formatTime(*item.PublishedAt))
			}
			fmt.Printf("  Discovered:  %s\n", formatTime(item.DiscoveredAt))
			fmt.Printf("  Scores:      relevance %.2f, engagement %.2f, freshness %.2f, quality %.2f\n",
				item.Relevance, item.Engagement, item.Freshness, item.QualityScore)
			if len(item.Tags) > 0 {
				fmt.Printf("  Tags:        %s\n", strings.Join(item.Tags, ", "))
			}
			if item.IsDuplicate && item.DuplicateOf != nil {
				fmt.Printf("  Duplicate of item %d\n", *item.DuplicateOf)
				return nil
			}

			record, err := st.GetRecordByItem(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Pipeline record %d\n", record.ID)
			fmt.Printf("  Stage:       %s\n", record.Stage)
			fmt.Printf("  Attempts:    %d\n", record.ProcessingAttempts)
			if record.VerdictFilter != "" {
				fmt.Printf("  Verdict by:  %s\n", record.VerdictFilter)
			}
			if record.AutoApproved {
				fmt.Println("  Auto-approved by the filter chain")
			}
			if record.ManualReviewRequired {
				fmt.Println("  Manual review required")
			}
			if record.ContentRef != "" {
				fmt.Printf("  Content ref: %s\n", record.ContentRef)
			}
			if record.LastError != "" {
				fmt.Printf("  Last error:  %s (%s)\n", record.LastError, formatTimePtr(record.LastErrorAt))
			}
			return nil
		},
	}
}

func newItemReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "review <id>",
		Short: "Mark a generated item as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE:  itemActionRunE(ctx, "reviewed", pipeline.MarkReviewed),
	}
}

func newItemPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <id>",
		Short: "Mark a reviewed item as published",
		Args:  cobra.ExactArgs(1),
		RunE:  itemActionRunE(ctx, "published", pipeline.MarkPublished),
	}
}

func newItemRedriveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redrive <id>",
		Short: "Return a held item to the processing queue",
		Args:  cobra.ExactArgs(1),
		RunE:  itemActionRunE(ctx, "queued for processing", pipeline.ReDrive),
	}
}

type itemAction func(ctx context.Context, st *store.Store, itemID int64) error

func itemActionRunE(ctx *commandContext, done string, action itemAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}
		st, err := ctx.openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := action(cmd.Context(), st, id); err != nil {
			return err
		}
		fmt.Printf("Item %d %s\n", id, done)
		return nil
	}
}

func newItemPurgeCommand(ctx *commandContext) *cobra.Command {
	var (
		olderThan  time.Duration
		stageFlags []string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old terminal-stage items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := make([]store.Stage, 0, len(stageFlags))
			for _, raw := range stageFlags {
				stage, ok := store.ParseStage(raw)
				if !ok {
					return fmt.Errorf("unknown stage %q", raw)
				}
				stages = append(stages, stage)
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cutoff := time.Now().UTC().Add(-olderThan)
			purged, err := st.PurgeItems(cmd.Context(), cutoff, stages...)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d items older than %s\n", purged, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of purged items")
	cmd.Flags().StringSliceVar(&stageFlags, "stage", []string{string(store.StageRejected), string(store.StagePublished)}, "Terminal stages eligible for purging")

	return cmd
}
