package filters

import (
	"context"
	"log/slog"

	"scout/internal/logging"
	"scout/internal/store"
)

// Verdict is the filter chain's decision for one item.
type Verdict struct {
	Stage store.Stage
	// FilterName identifies the deciding filter; empty when every filter
	// passed and the item was auto-approved.
	FilterName   string
	AutoApproved bool
	Reason       string
}

// Chain evaluates the active filters for a source scope against one item.
type Chain struct {
	store  *store.Store
	logger *slog.Logger
}

// NewChain builds a filter chain backed by the store.
func NewChain(st *store.Store, logger *slog.Logger) *Chain {
	return &Chain{store: st, logger: logging.NewComponentLogger(logger, "filters")}
}

// Evaluate runs the item through the active filters for its source type in
// descending priority order. The first failing filter short-circuits the
// chain: a blocking filter rejects the item, an advisory one holds it for
// manual review. Counters are bumped only for filters the item actually
// reached, so short-circuiting keeps downstream counts honest.
func (c *Chain) Evaluate(ctx context.Context, item *store.Item, sourceName string) (Verdict, error) {
	stored, err := c.store.ActiveFiltersForScope(ctx, item.SourceType)
	if err != nil {
		return Verdict{}, err
	}

	for _, filter := range stored {
		evaluator, err := Compile(filter)
		if err != nil {
			return Verdict{}, err
		}

		passed := evaluator.Pass(item, sourceName)
		if err := c.store.IncrementFilterCounters(ctx, filter.ID, passed); err != nil {
			return Verdict{}, err
		}
		if passed {
			continue
		}

		verdict := Verdict{
			Stage:      store.StageRejected,
			FilterName: filter.Name,
			Reason:     "failed filter " + filter.Name,
		}
		if filter.Advisory {
			verdict.Stage = store.StageHoldForReview
			verdict.Reason = "flagged by advisory filter " + filter.Name
		}
		c.logger.Debug("filter stopped item",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("filter", filter.Name),
			logging.String(logging.FieldStage, string(verdict.Stage)))
		return verdict, nil
	}

	return Verdict{Stage: store.StageApproved, AutoApproved: true}, nil
}
