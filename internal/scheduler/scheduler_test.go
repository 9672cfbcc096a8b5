package scheduler_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scout/internal/config"
	"scout/internal/fetch"
	"scout/internal/ingest"
	"scout/internal/logging"
	"scout/internal/scheduler"
	"scout/internal/services"
	"scout/internal/store"
)

func TestBackoffDoublesPerFailure(t *testing.T) {
	freq := time.Minute
	cap := 10 * time.Minute
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := scheduler.Backoff(freq, tc.failures, cap); got != tc.want {
			t.Fatalf("backoff(%d failures) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

type stubAdapter struct {
	mu    sync.Mutex
	items []fetch.RawItem
	err   error
	calls int
}

func (a *stubAdapter) Type() string { return "rss" }

func (a *stubAdapter) Fetch(context.Context, *store.Source) ([]fetch.RawItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.items, nil
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordingNotifier struct {
	mu          sync.Mutex
	deactivated []string
	cycleErrors int
}

func (n *recordingNotifier) NotifySourceDeactivated(_ context.Context, name string, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deactivated = append(n.deactivated, name)
	return nil
}

func (n *recordingNotifier) NotifyCycleError(context.Context, string, error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cycleErrors++
	return nil
}

func (n *recordingNotifier) NotifyItemHeld(context.Context, string, string) error { return nil }
func (n *recordingNotifier) NotifyItemPublished(context.Context, string) error    { return nil }
func (n *recordingNotifier) NotifyError(context.Context, error, string) error     { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error               { return nil }

func newTestScheduler(t *testing.T, adapter *stubAdapter, mutate func(*config.Config)) (*scheduler.Scheduler, *store.Store, *recordingNotifier) {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "scout.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	registry := fetch.NewRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}

	notifier := &recordingNotifier{}
	ingestor := ingest.New(st, &cfg, logging.NewNop())
	sched := scheduler.New(&cfg, st, logging.NewNop(), registry, ingestor, notifier)
	return sched, st, notifier
}

func makeDue(t *testing.T, st *store.Store, id int64) {
	t.Helper()
	if err := st.PostponeSource(context.Background(), id, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("make source due: %v", err)
	}
}

func TestRunCycleIngestsAndReschedules(t *testing.T) {
	adapter := &stubAdapter{items: []fetch.RawItem{
		{ExternalID: "a", Title: "First", Description: "body", Relevance: fetch.Score(0.5), Engagement: fetch.Score(0.5), Freshness: 0.5},
		{ExternalID: "b", Title: "Second", Description: "body two", Relevance: fetch.Score(0.5), Engagement: fetch.Score(0.5), Freshness: 0.5},
	}}
	sched, st, _ := newTestScheduler(t, adapter, nil)
	ctx := context.Background()

	source, err := st.CreateSource(ctx, store.NewSource{Type: "rss", Name: "feed", CheckFrequency: time.Hour})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	before := time.Now().UTC()
	sched.RunCycle(ctx)

	if adapter.callCount() != 1 {
		t.Fatalf("expected one fetch, got %d", adapter.callCount())
	}

	items, err := st.ListItems(ctx, 0)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 ingested items, got %d", len(items))
	}

	updated, err := st.GetSourceByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	// The schedule always advances: a checked source is never due again
	// immediately.
	if !updated.NextCheckAt.After(before.Add(50 * time.Minute)) {
		t.Fatalf("next check %v did not advance by the check frequency", updated.NextCheckAt)
	}
	if updated.LastCheckedAt == nil {
		t.Fatal("expected last checked timestamp")
	}

	entries, err := st.RecentLog(ctx, 10)
	if err != nil {
		t.Fatalf("recent log: %v", err)
	}
	if len(entries) != 1 || entries[0].Discovered != 2 {
		t.Fatalf("expected one cycle log with 2 discovered, got %+v", entries)
	}
}

func TestRunCycleBacksOffFailingSource(t *testing.T) {
	adapter := &stubAdapter{err: services.Wrap(services.ErrTransient, "fetch", "rss fetch", "upstream down", nil)}
	sched, st, notifier := newTestScheduler(t, adapter, nil)
	ctx := context.Background()

	source, err := st.CreateSource(ctx, store.NewSource{Type: "rss", Name: "flaky", CheckFrequency: time.Hour})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	before := time.Now().UTC()
	sched.RunCycle(ctx)

	updated, err := st.GetSourceByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.ConsecutiveFailures != 1 {
		t.Fatalf("expected one failure recorded, got %d", updated.ConsecutiveFailures)
	}
	if !updated.Active {
		t.Fatal("one failure must not deactivate the source")
	}
	if !updated.NextCheckAt.After(before.Add(50 * time.Minute)) {
		t.Fatalf("expected backoff of at least the frequency, next check %v", updated.NextCheckAt)
	}

	notifier.mu.Lock()
	cycleErrors := notifier.cycleErrors
	notifier.mu.Unlock()
	if cycleErrors != 1 {
		t.Fatalf("expected one cycle error notification, got %d", cycleErrors)
	}

	entries, err := st.RecentLog(ctx, 10)
	if err != nil {
		t.Fatalf("recent log: %v", err)
	}
	if len(entries) != 1 || entries[0].Level != "error" {
		t.Fatalf("expected one error log entry, got %+v", entries)
	}
	if entries[0].ErrorCode != "transient_fetch_error" {
		t.Fatalf("unexpected error code %q", entries[0].ErrorCode)
	}
}

func TestRepeatedFailuresDeactivateSource(t *testing.T) {
	adapter := &stubAdapter{err: services.Wrap(services.ErrPermanent, "fetch", "rss fetch", "feed gone", nil)}
	sched, st, notifier := newTestScheduler(t, adapter, func(cfg *config.Config) {
		cfg.Scheduler.FailureThreshold = 2
	})
	ctx := context.Background()

	source, err := st.CreateSource(ctx, store.NewSource{Type: "rss", Name: "dying", CheckFrequency: time.Hour})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	sched.RunCycle(ctx)
	makeDue(t, st, source.ID)
	sched.RunCycle(ctx)

	updated, err := st.GetSourceByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.Active {
		t.Fatal("expected source deactivated at the failure threshold")
	}
	if updated.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 failures, got %d", updated.ConsecutiveFailures)
	}

	notifier.mu.Lock()
	deactivated := append([]string(nil), notifier.deactivated...)
	notifier.mu.Unlock()
	if len(deactivated) != 1 || deactivated[0] != "dying" {
		t.Fatalf("expected one deactivation notification for dying, got %v", deactivated)
	}

	// A deactivated source is out of the schedule entirely.
	makeDue(t, st, source.ID)
	sched.RunCycle(ctx)
	if adapter.callCount() != 2 {
		t.Fatalf("deactivated source must not be fetched, got %d calls", adapter.callCount())
	}
}

func TestRateLimitPostponesWithoutFailure(t *testing.T) {
	adapter := &stubAdapter{items: []fetch.RawItem{
		{ExternalID: "a", Title: "Only", Description: "body", Relevance: fetch.Score(0.5), Engagement: fetch.Score(0.5), Freshness: 0.5},
	}}
	sched, st, _ := newTestScheduler(t, adapter, nil)
	ctx := context.Background()

	source, err := st.CreateSource(ctx, store.NewSource{
		Type:             "rss",
		Name:             "limited",
		CheckFrequency:   time.Hour,
		RateLimitPerHour: 1,
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	sched.RunCycle(ctx)
	makeDue(t, st, source.ID)
	sched.RunCycle(ctx)

	if adapter.callCount() != 1 {
		t.Fatalf("expected second check postponed by rate limit, got %d fetches", adapter.callCount())
	}

	updated, err := st.GetSourceByID(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.ConsecutiveFailures != 0 {
		t.Fatalf("rate limiting must not count as failure, got %d", updated.ConsecutiveFailures)
	}
	if !updated.Active {
		t.Fatal("rate limiting must not deactivate the source")
	}
}
