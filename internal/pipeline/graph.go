package pipeline

import (
	"fmt"

	"scout/internal/services"
	"scout/internal/store"
)

// transitions is the full stage graph. Rejected and published are terminal;
// hold_for_review leaves only through an operator re-drive.
var transitions = map[store.Stage][]store.Stage{
	store.StageDiscovered:    {store.StageQualityCheck},
	store.StageQualityCheck:  {store.StageApproved, store.StageRejected, store.StageHoldForReview},
	store.StageApproved:      {store.StageProcessing},
	store.StageProcessing:    {store.StageGenerated, store.StageFailed, store.StageApproved},
	store.StageGenerated:     {store.StageReviewed},
	store.StageReviewed:      {store.StagePublished},
	store.StageFailed:        {store.StageProcessing, store.StageHoldForReview},
	store.StageHoldForReview: {store.StageApproved},
	store.StageRejected:      {},
	store.StagePublished:     {},
}

// CanTransition reports whether the stage graph allows from -> to.
func CanTransition(from, to store.Stage) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an invariant violation when the stage graph
// forbids from -> to.
func ValidateTransition(from, to store.Stage) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrInvariant, "pipeline", "transition",
			fmt.Sprintf("transition %s -> %s is not allowed", from, to), nil)
	}
	return nil
}
