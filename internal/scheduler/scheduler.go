// Package scheduler owns the source check loop: every tick it finds due
// sources, fans them out to a bounded worker pool, fetches through the
// adapter registry, and hands the results to ingestion. Failures back the
// source off exponentially and eventually deactivate it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/google/uuid"

	"scout/internal/config"
	"scout/internal/fetch"
	"scout/internal/ingest"
	"scout/internal/logging"
	"scout/internal/notifications"
	"scout/internal/services"
	"scout/internal/store"
)

// Scheduler drives periodic source checks.
type Scheduler struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	registry *fetch.Registry
	ingestor *ingest.Ingestor
	notifier notifications.Service

	tick             time.Duration
	fetchTimeout     time.Duration
	failureThreshold int
	backoffCap       time.Duration
	defaultRateLimit int64

	// slots bounds concurrent fetches across all sources.
	slots chan struct{}

	limiterMu sync.Mutex
	limiters  map[int64]*slidingwindow.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a scheduler.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, registry *fetch.Registry, ingestor *ingest.Ingestor, notifier notifications.Service) *Scheduler {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	maxConcurrent := cfg.Scheduler.MaxConcurrentFetches
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		cfg:              cfg,
		store:            st,
		logger:           logging.NewComponentLogger(logger, "scheduler"),
		registry:         registry,
		ingestor:         ingestor,
		notifier:         notifier,
		tick:             time.Duration(cfg.Scheduler.TickInterval) * time.Second,
		fetchTimeout:     time.Duration(cfg.Scheduler.FetchTimeout) * time.Second,
		failureThreshold: cfg.Scheduler.FailureThreshold,
		backoffCap:       time.Duration(cfg.Scheduler.BackoffCap) * time.Second,
		defaultRateLimit: int64(cfg.Scheduler.DefaultRateLimit),
		slots:            make(chan struct{}, maxConcurrent),
		limiters:         make(map[int64]*slidingwindow.Limiter),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop terminates the tick loop and waits for in-flight checks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// First cycle runs immediately so a fresh daemon does not idle a full
	// tick before checking anything.
	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one scheduling pass: every due source is checked on the
// worker pool. The call returns when all checks in the cycle complete.
func (s *Scheduler) RunCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	ctx = services.WithCycleID(ctx, cycleID)
	logger := logging.WithContext(ctx, s.logger)

	due, err := s.store.DueSources(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("failed to list due sources", logging.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	logger.Debug("cycle started", logging.Int("due_sources", len(due)))

	var wg sync.WaitGroup
	for _, source := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case s.slots <- struct{}{}:
		}

		wg.Add(1)
		go func(source *store.Source) {
			defer wg.Done()
			defer func() { <-s.slots }()
			s.checkSource(ctx, source)
		}(source)
	}
	wg.Wait()
}

func (s *Scheduler) checkSource(ctx context.Context, source *store.Source) {
	ctx = services.WithSourceID(ctx, source.ID)
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldSourceName, source.Name))

	if !s.limiter(source).Allow() {
		// Budget exhausted; try again next tick without counting a failure.
		next := time.Now().UTC().Add(s.tick)
		if err := s.store.PostponeSource(ctx, source.ID, next); err != nil {
			logger.Error("failed to postpone rate-limited source", logging.Error(err))
			return
		}
		logger.Info("source postponed: hourly rate limit reached")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	started := time.Now().UTC()
	adapter, err := s.registry.Resolve(source.Type)
	if err != nil {
		s.recordFailure(ctx, logger, source, started, err)
		return
	}

	rawItems, err := adapter.Fetch(fetchCtx, source)
	if err != nil {
		s.recordFailure(ctx, logger, source, started, err)
		return
	}

	stats, err := s.ingestor.IngestBatch(ctx, source, rawItems)
	if err != nil {
		s.recordFailure(ctx, logger, source, started, err)
		return
	}

	now := time.Now().UTC()
	if err := s.store.MarkSourceChecked(ctx, source.ID, now); err != nil {
		logger.Error("failed to mark source checked", logging.Error(err))
		return
	}

	duration := now.Sub(started)
	logger.Info("source checked",
		logging.Int("fetched", len(rawItems)),
		logging.Int("discovered", stats.Discovered),
		logging.Int("duplicates", stats.Duplicates),
		logging.Int("skipped", stats.Skipped),
		logging.Duration("duration", duration))

	if err := s.store.AppendLog(ctx, store.LogEntry{
		SourceID:   &source.ID,
		Level:      "info",
		Message:    "check cycle complete",
		Discovered: stats.Discovered,
		Processed:  len(rawItems),
		Filtered:   stats.Duplicates + stats.Skipped,
		Duration:   duration,
	}); err != nil {
		logger.Warn("failed to append monitoring log", logging.Error(err))
	}
}

func (s *Scheduler) recordFailure(ctx context.Context, logger *slog.Logger, source *store.Source, started time.Time, cause error) {
	now := time.Now().UTC()
	failures := source.ConsecutiveFailures + 1
	next := now.Add(Backoff(source.CheckFrequency, failures, s.backoffCap))
	deactivate := s.failureThreshold > 0 && failures >= s.failureThreshold

	updated, err := s.store.MarkSourceFailed(ctx, source.ID, now, next, deactivate)
	if err != nil {
		logger.Error("failed to record source failure", logging.Error(err))
		return
	}

	logger.Warn("source check failed",
		logging.Error(cause),
		logging.Int("consecutive_failures", updated.ConsecutiveFailures),
		logging.String(logging.FieldErrorCode, services.ErrorCode(cause)),
		logging.Bool("deactivated", deactivate))

	if err := s.store.AppendLog(ctx, store.LogEntry{
		SourceID:     &source.ID,
		Level:        "error",
		Message:      "check cycle failed",
		Duration:     now.Sub(started),
		ErrorCode:    services.ErrorCode(cause),
		ErrorDetails: cause.Error(),
	}); err != nil {
		logger.Warn("failed to append monitoring log", logging.Error(err))
	}

	if deactivate {
		logger.Error("source deactivated after repeated failures",
			logging.Int("failures", updated.ConsecutiveFailures))
		if err := s.notifier.NotifySourceDeactivated(ctx, source.Name, updated.ConsecutiveFailures); err != nil {
			logger.Warn("deactivation notification failed", logging.Error(err))
		}
		return
	}

	if err := s.notifier.NotifyCycleError(ctx, source.Name, cause); err != nil {
		logger.Warn("cycle error notification failed", logging.Error(err))
	}
}

func (s *Scheduler) limiter(source *store.Source) *slidingwindow.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	if lim, ok := s.limiters[source.ID]; ok {
		return lim
	}
	limit := source.RateLimitPerHour
	if limit <= 0 {
		limit = s.defaultRateLimit
	}
	lim, _ := slidingwindow.NewLimiter(time.Hour, limit, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	s.limiters[source.ID] = lim
	return lim
}
