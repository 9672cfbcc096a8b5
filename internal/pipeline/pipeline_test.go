package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scout/internal/config"
	"scout/internal/logging"
	"scout/internal/pipeline"
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

func seedScoredItem(t *testing.T, st *store.Store) (*store.Item, *store.PipelineRecord) {
	t.Helper()
	ctx := context.Background()
	source, err := st.CreateSource(ctx, store.NewSource{Type: "rss", Name: "feed", CheckFrequency: time.Hour})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	result, err := st.InsertDiscovered(ctx, store.NewItem{
		SourceID:    source.ID,
		SourceType:  source.Type,
		ExternalID:  "post-1",
		Title:       "Go 1.26 released",
		Description: "compiler improvements",
		ContentHash: "hash-1",
		Relevance:   0.8,
		Engagement:  0.6,
		Freshness:   0.9,
	}, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	record, err := st.GetRecordByItem(ctx, result.Item.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return result.Item, record
}

func newManager(t *testing.T, st *store.Store, generator pipeline.Generator) (*pipeline.Manager, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.MaxAttempts = 2
	cfg.Pipeline.RetryDelay = 0
	return pipeline.NewManager(&cfg, st, logging.NewNop(), nil, generator), cfg
}

type failingGenerator struct {
	failures int
	calls    int
}

func (g *failingGenerator) Generate(context.Context, *store.Item) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", services.Wrap(services.ErrTransient, "pipeline", "generate", "generator unavailable", nil)
	}
	return "draft://generated", nil
}

func TestStageGraph(t *testing.T) {
	allowed := [][2]store.Stage{
		{store.StageDiscovered, store.StageQualityCheck},
		{store.StageQualityCheck, store.StageApproved},
		{store.StageQualityCheck, store.StageRejected},
		{store.StageQualityCheck, store.StageHoldForReview},
		{store.StageApproved, store.StageProcessing},
		{store.StageProcessing, store.StageGenerated},
		{store.StageProcessing, store.StageFailed},
		{store.StageFailed, store.StageProcessing},
		{store.StageFailed, store.StageHoldForReview},
		{store.StageGenerated, store.StageReviewed},
		{store.StageReviewed, store.StagePublished},
		{store.StageHoldForReview, store.StageApproved},
	}
	for _, edge := range allowed {
		if !pipeline.CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}

	forbidden := [][2]store.Stage{
		{store.StageDiscovered, store.StageApproved},
		{store.StageApproved, store.StagePublished},
		{store.StageRejected, store.StageApproved},
		{store.StagePublished, store.StageReviewed},
		{store.StageGenerated, store.StagePublished},
	}
	for _, edge := range forbidden {
		if pipeline.CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be forbidden", edge[0], edge[1])
		}
		if err := pipeline.ValidateTransition(edge[0], edge[1]); !errors.Is(err, services.ErrInvariant) {
			t.Fatalf("expected invariant violation for %s -> %s, got %v", edge[0], edge[1], err)
		}
	}
}

func TestQualityCheckApprovesAndScores(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	manager, _ := newManager(t, st, nil)

	item, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}

	updatedItem, err := st.GetItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if updatedItem.QualityScore != 0.77 {
		t.Fatalf("expected composite score 0.77, got %v", updatedItem.QualityScore)
	}
	if updatedItem.Stage != store.StageApproved {
		t.Fatalf("expected approval with no filters registered, got %s", updatedItem.Stage)
	}

	updatedRecord, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !updatedRecord.AutoApproved || updatedRecord.QualityCheckedAt == nil {
		t.Fatalf("verdict bookkeeping missing: %+v", updatedRecord)
	}
}

func TestQualityCheckRejectsViaFilter(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	manager, _ := newManager(t, st, nil)

	if _, err := st.CreateFilter(ctx, store.NewFilter{
		Name: "impossible-floor", Kind: store.FilterScoreThreshold, Priority: 10,
		Config: `{"min_score":0.99}`,
	}); err != nil {
		t.Fatalf("create filter: %v", err)
	}

	item, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}

	updatedRecord, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updatedRecord.Stage != store.StageRejected {
		t.Fatalf("expected rejection, got %s", updatedRecord.Stage)
	}
	if updatedRecord.VerdictFilter != "impossible-floor" {
		t.Fatalf("expected deciding filter recorded, got %q", updatedRecord.VerdictFilter)
	}

	updatedItem, err := st.GetItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if updatedItem.Stage != store.StageRejected {
		t.Fatalf("expected item stage mirrored, got %s", updatedItem.Stage)
	}
}

func TestProcessGeneratesContent(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	manager, _ := newManager(t, st, nil)

	_, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}
	record, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if err := manager.Process(ctx, record); err != nil {
		t.Fatalf("process: %v", err)
	}

	updated, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Stage != store.StageGenerated {
		t.Fatalf("expected generated stage, got %s", updated.Stage)
	}
	if !strings.HasPrefix(updated.ContentRef, "draft://") {
		t.Fatalf("expected draft content reference, got %q", updated.ContentRef)
	}
	if updated.ProcessingAttempts != 1 {
		t.Fatalf("expected one attempt, got %d", updated.ProcessingAttempts)
	}
}

func TestProcessEscalatesAfterRetryBudget(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	generator := &failingGenerator{failures: 10}
	manager, cfg := newManager(t, st, generator)

	_, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}

	// Two failing attempts exhaust the budget; the third pickup escalates.
	for i := 0; i < cfg.Pipeline.MaxAttempts+1; i++ {
		record, err := st.GetRecordByID(ctx, record.ID)
		if err != nil {
			t.Fatalf("get record: %v", err)
		}
		if err := manager.Process(ctx, record); err != nil {
			t.Fatalf("process attempt %d: %v", i+1, err)
		}
	}

	updated, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Stage != store.StageHoldForReview {
		t.Fatalf("expected escalation to hold_for_review, got %s", updated.Stage)
	}
	if !updated.ManualReviewRequired {
		t.Fatal("expected manual review flag set")
	}
	if updated.ProcessingAttempts != cfg.Pipeline.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.Pipeline.MaxAttempts, updated.ProcessingAttempts)
	}
	if generator.calls != cfg.Pipeline.MaxAttempts {
		t.Fatalf("generator must not run during escalation, got %d calls", generator.calls)
	}
}

func TestOperatorActionsFollowStageGraph(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	manager, _ := newManager(t, st, nil)

	item, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}

	// Publishing an approved item skips reviewed and must be refused.
	if err := pipeline.MarkPublished(ctx, st, item.ID); !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected invariant violation publishing approved item, got %v", err)
	}

	record, err := st.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if err := manager.Process(ctx, record); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := pipeline.MarkReviewed(ctx, st, item.ID); err != nil {
		t.Fatalf("mark reviewed: %v", err)
	}
	if err := pipeline.MarkPublished(ctx, st, item.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	final, err := st.GetRecordByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if final.Stage != store.StagePublished {
		t.Fatalf("expected published, got %s", final.Stage)
	}
	if final.ReviewedAt == nil || final.PublishedAt == nil {
		t.Fatalf("expected review and publish timestamps, got %+v", final)
	}

	if err := pipeline.MarkReviewed(ctx, st, item.ID); !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("published is terminal, expected invariant violation, got %v", err)
	}
}

func TestReDriveReturnsHeldItemToApproved(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()
	generator := &failingGenerator{failures: 10}
	manager, cfg := newManager(t, st, generator)

	item, record := seedScoredItem(t, st)
	if err := manager.QualityCheck(ctx, record); err != nil {
		t.Fatalf("quality check: %v", err)
	}
	for i := 0; i < cfg.Pipeline.MaxAttempts+1; i++ {
		record, err := st.GetRecordByID(ctx, record.ID)
		if err != nil {
			t.Fatalf("get record: %v", err)
		}
		if err := manager.Process(ctx, record); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := pipeline.ReDrive(ctx, st, item.ID); err != nil {
		t.Fatalf("re-drive: %v", err)
	}
	updated, err := st.GetRecordByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Stage != store.StageApproved || updated.ProcessingAttempts != 0 {
		t.Fatalf("expected approved with fresh budget, got stage=%s attempts=%d",
			updated.Stage, updated.ProcessingAttempts)
	}

	// Generator recovered; the re-driven item completes.
	generator.failures = 0
	if err := manager.Process(ctx, updated); err != nil {
		t.Fatalf("process after re-drive: %v", err)
	}
	final, err := st.GetRecordByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if final.Stage != store.StageGenerated {
		t.Fatalf("expected generated after recovery, got %s", final.Stage)
	}
}
