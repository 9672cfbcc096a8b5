package filters_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scout/internal/filters"
	"scout/internal/logging"
	"scout/internal/services"
	"scout/internal/store"
)

func mustOpen(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "scout.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedItem(t *testing.T, st *store.Store, title string, score float64) *store.Item {
	t.Helper()
	ctx := context.Background()
	source, err := st.GetSourceByName(ctx, "rss", "feed")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if source == nil {
		source, err = st.CreateSource(ctx, store.NewSource{Type: "rss", Name: "feed", CheckFrequency: time.Hour})
		if err != nil {
			t.Fatalf("create source: %v", err)
		}
	}
	result, err := st.InsertDiscovered(ctx, store.NewItem{
		SourceID:    source.ID,
		SourceType:  source.Type,
		ExternalID:  "item-" + title,
		Title:       title,
		Description: "about " + title,
		ContentHash: "hash-" + title,
	}, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if err := st.UpdateItemScores(ctx, result.Item.ID, score, score, score, score); err != nil {
		t.Fatalf("update scores: %v", err)
	}
	item, err := st.GetItemByID(ctx, result.Item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return item
}

func TestCompileRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		filter store.Filter
	}{
		{"unknown kind", store.Filter{Name: "x", Kind: "mystery"}},
		{"bad json", store.Filter{Name: "x", Kind: store.FilterKeyword, Config: "{"}},
		{"empty pattern", store.Filter{Name: "x", Kind: store.FilterRegex, Config: "{}"}},
		{"invalid pattern", store.Filter{Name: "x", Kind: store.FilterRegex, Config: `{"pattern":"["}`}},
		{"threshold out of range", store.Filter{Name: "x", Kind: store.FilterScoreThreshold, Config: `{"min_score":1.5}`}},
		{"source specific without tags", store.Filter{Name: "x", Kind: store.FilterSourceSpecific, Config: "{}"}},
		{"source specific with only blank tags", store.Filter{Name: "x", Kind: store.FilterSourceSpecific, Config: `{"allowed_tags":[" ",""]}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := filters.Compile(&tc.filter); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestKeywordEvaluator(t *testing.T) {
	item := &store.Item{Title: "Go 1.26 released", Description: "compiler news"}

	anyMatch, err := filters.Compile(&store.Filter{
		Name: "kw", Kind: store.FilterKeyword,
		Config: `{"keywords":["go","rust"]}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !anyMatch.Pass(item, "feed") {
		t.Fatal("expected any-match keyword filter to pass")
	}

	allMatch, err := filters.Compile(&store.Filter{
		Name: "kw-all", Kind: store.FilterKeyword,
		Config: `{"keywords":["go","rust"],"match_all":true}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if allMatch.Pass(item, "feed") {
		t.Fatal("expected match_all filter to fail with one keyword missing")
	}

	excluded, err := filters.Compile(&store.Filter{
		Name: "kw-excl", Kind: store.FilterKeyword,
		Config: `{"exclude_keywords":["compiler"]}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if excluded.Pass(item, "feed") {
		t.Fatal("expected exclusion keyword to fail the item")
	}
}

func TestKeywordMatchAllIgnoresBlankEntries(t *testing.T) {
	item := &store.Item{Title: "Go 1.26 released", Description: "compiler news"}

	evaluator, err := filters.Compile(&store.Filter{
		Name: "kw-blanks", Kind: store.FilterKeyword,
		Config: `{"keywords":["go",""," "],"match_all":true}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !evaluator.Pass(item, "feed") {
		t.Fatal("blank keyword entries must not count toward the match_all quota")
	}
}

func TestRegexEvaluator(t *testing.T) {
	item := &store.Item{Title: "Security advisory CVE-2026-1234", Description: ""}

	match, err := filters.Compile(&store.Filter{
		Name: "cve", Kind: store.FilterRegex,
		Config: `{"pattern":"CVE-\\d{4}-\\d+"}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !match.Pass(item, "feed") {
		t.Fatal("expected pattern to match")
	}

	negated, err := filters.Compile(&store.Filter{
		Name: "no-cve", Kind: store.FilterRegex,
		Config: `{"pattern":"CVE-\\d{4}-\\d+","negate":true}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if negated.Pass(item, "feed") {
		t.Fatal("expected negated pattern to fail the item")
	}
}

func TestSourceSpecificEvaluatorMatchesTagAllowList(t *testing.T) {
	evaluator, err := filters.Compile(&store.Filter{
		Name: "releases-only", Kind: store.FilterSourceSpecific,
		Config: `{"sources":["feed"],"allowed_tags":["release","Security"]}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	release := &store.Item{Tags: []string{"Release", "golang"}}
	if !evaluator.Pass(release, "feed") {
		t.Fatal("item carrying an allow-listed tag must pass")
	}

	opinion := &store.Item{Tags: []string{"opinion"}}
	if evaluator.Pass(opinion, "feed") {
		t.Fatal("item without an allow-listed tag must fail")
	}
	untagged := &store.Item{}
	if evaluator.Pass(untagged, "feed") {
		t.Fatal("untagged item from a listed source must fail")
	}

	// The filter only constrains its listed sources.
	if !evaluator.Pass(opinion, "other") {
		t.Fatal("unlisted source must pass regardless of tags")
	}
}

func TestSourceSpecificEvaluatorWithoutSourcesAppliesEverywhere(t *testing.T) {
	evaluator, err := filters.Compile(&store.Filter{
		Name: "tags-anywhere", Kind: store.FilterSourceSpecific,
		Config: `{"allowed_tags":["release"]}`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if evaluator.Pass(&store.Item{Tags: []string{"opinion"}}, "any") {
		t.Fatal("allow list must apply to every source when none are named")
	}
	if !evaluator.Pass(&store.Item{Tags: []string{"release"}}, "any") {
		t.Fatal("allow-listed tag must pass")
	}
}

func TestChainApprovesWhenAllFiltersPass(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	chain := filters.NewChain(st, logging.NewNop())

	if _, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "floor", Kind: store.FilterScoreThreshold, Priority: 10,
		Config: `{"min_score":0.3}`,
	}); err != nil {
		t.Fatalf("create filter: %v", err)
	}

	item := seedItem(t, st, "good", 0.9)
	verdict, err := chain.Evaluate(ctx, item, "feed")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Stage != store.StageApproved || !verdict.AutoApproved {
		t.Fatalf("expected auto-approval, got %+v", verdict)
	}
}

func TestChainShortCircuitsOnFirstFailure(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	chain := filters.NewChain(st, logging.NewNop())

	high, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "high-floor", Kind: store.FilterScoreThreshold, Priority: 90,
		Config: `{"min_score":0.8}`,
	})
	if err != nil {
		t.Fatalf("create filter: %v", err)
	}
	low, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "low-floor", Kind: store.FilterScoreThreshold, Priority: 10,
		Config: `{"min_score":0.1}`,
	})
	if err != nil {
		t.Fatalf("create filter: %v", err)
	}

	item := seedItem(t, st, "middling", 0.5)
	verdict, err := chain.Evaluate(ctx, item, "feed")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Stage != store.StageRejected || verdict.FilterName != "high-floor" {
		t.Fatalf("expected rejection by high-floor, got %+v", verdict)
	}

	// The failing filter was evaluated; the lower-priority one never ran.
	updatedHigh, err := st.GetFilterByID(ctx, high.ID)
	if err != nil {
		t.Fatalf("get filter: %v", err)
	}
	updatedLow, err := st.GetFilterByID(ctx, low.ID)
	if err != nil {
		t.Fatalf("get filter: %v", err)
	}
	if updatedHigh.TotalEvaluated != 1 || updatedHigh.TotalPassed != 0 {
		t.Fatalf("high-floor counters wrong: %+v", updatedHigh)
	}
	if updatedLow.TotalEvaluated != 0 {
		t.Fatalf("short-circuited filter must not be counted, got %+v", updatedLow)
	}
}

func TestChainAdvisoryFailureHoldsForReview(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	chain := filters.NewChain(st, logging.NewNop())

	if _, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "advisory-floor", Kind: store.FilterScoreThreshold, Priority: 50,
		Advisory: true,
		Config:   `{"min_score":0.8}`,
	}); err != nil {
		t.Fatalf("create filter: %v", err)
	}

	item := seedItem(t, st, "borderline", 0.5)
	verdict, err := chain.Evaluate(ctx, item, "feed")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Stage != store.StageHoldForReview {
		t.Fatalf("expected hold for review from advisory filter, got %+v", verdict)
	}
	if verdict.FilterName != "advisory-floor" {
		t.Fatalf("expected deciding filter recorded, got %q", verdict.FilterName)
	}
}

func TestChainIgnoresFiltersForOtherSourceTypes(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	chain := filters.NewChain(st, logging.NewNop())

	if _, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "api-floor", Kind: store.FilterScoreThreshold, SourceType: "api", Priority: 90,
		Config: `{"min_score":0.99}`,
	}); err != nil {
		t.Fatalf("create filter: %v", err)
	}

	item := seedItem(t, st, "rss-item", 0.4)
	verdict, err := chain.Evaluate(ctx, item, "feed")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.Stage != store.StageApproved {
		t.Fatalf("filter scoped to another source type must not apply, got %+v", verdict)
	}
}
