package pipeline

import (
	"context"
	"fmt"

	"scout/internal/services"
	"scout/internal/store"
)

// Operator actions arrive from outside the automated lanes (review tooling,
// the CLI). Each validates the requested move against the stage graph before
// touching the store, so a review signal for an item that never generated is
// reported as an invariant violation rather than a silent no-op.

func recordForItem(ctx context.Context, st *store.Store, itemID int64) (*store.PipelineRecord, error) {
	record, err := st.GetRecordByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "operator action",
			fmt.Sprintf("item %d has no pipeline record", itemID), nil)
	}
	return record, nil
}

// MarkReviewed records that a generated item passed external review.
func MarkReviewed(ctx context.Context, st *store.Store, itemID int64) error {
	record, err := recordForItem(ctx, st, itemID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(record.Stage, store.StageReviewed); err != nil {
		return err
	}
	return st.MarkReviewed(ctx, record.ID)
}

// MarkPublished records that a reviewed item went live.
func MarkPublished(ctx context.Context, st *store.Store, itemID int64) error {
	record, err := recordForItem(ctx, st, itemID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(record.Stage, store.StagePublished); err != nil {
		return err
	}
	return st.MarkPublished(ctx, record.ID)
}

// ReDrive returns a held item to approved with a fresh retry budget.
func ReDrive(ctx context.Context, st *store.Store, itemID int64) error {
	record, err := recordForItem(ctx, st, itemID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(record.Stage, store.StageApproved); err != nil {
		return err
	}
	return st.ReDriveHeld(ctx, record.ID)
}
