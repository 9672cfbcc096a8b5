// Package scoring computes the composite quality score used by the filter
// chain to decide whether a discovered item is worth generating content for.
package scoring

import (
	"fmt"
	"math"

	"scout/internal/services"
)

// Component weights for the composite score. They sum to 1 so an unweighted
// source with perfect sub-scores lands exactly on 1.0.
const (
	relevanceWeight  = 0.4
	engagementWeight = 0.3
	freshnessWeight  = 0.3
)

// Inputs carries the sub-scores produced by a source adapter together with
// the source's configured weight multiplier.
type Inputs struct {
	Relevance    float64
	Engagement   float64
	Freshness    float64
	SourceWeight float64
}

// Score computes the weighted composite quality score rounded to two decimal
// places. Sub-scores must already be in [0, 1]; out-of-range inputs are a
// caller bug and are rejected rather than silently clamped. The result is
// clamped to [0, 1] because source weights above 1 can push the raw product
// past the scale.
func Score(in Inputs) (float64, error) {
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"relevance", in.Relevance},
		{"engagement", in.Engagement},
		{"freshness", in.Freshness},
	} {
		if math.IsNaN(check.value) || check.value < 0 || check.value > 1 {
			return 0, services.Wrap(services.ErrValidation, "scoring", "score",
				fmt.Sprintf("%s score %v is outside [0, 1]", check.name, check.value), nil)
		}
	}
	if math.IsNaN(in.SourceWeight) || in.SourceWeight < 0 || in.SourceWeight > 2 {
		return 0, services.Wrap(services.ErrValidation, "scoring", "score",
			fmt.Sprintf("source weight %v is outside [0, 2]", in.SourceWeight), nil)
	}

	raw := (in.Relevance*relevanceWeight + in.Engagement*engagementWeight + in.Freshness*freshnessWeight) * in.SourceWeight
	rounded := math.Round(raw*100) / 100
	return math.Min(math.Max(rounded, 0), 1), nil
}
