package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scout/internal/config"
	"scout/internal/filters"
	"scout/internal/logging"
	"scout/internal/notifications"
	"scout/internal/scoring"
	"scout/internal/services"
	"scout/internal/store"
)

// Manager coordinates the automated stage transitions: quality checks for
// discovered items and generation for approved ones.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	logger    *slog.Logger
	chain     *filters.Chain
	generator Generator
	notifier  notifications.Service

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	retryDelay         time.Duration
	staleTimeout       time.Duration
	maxAttempts        int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a pipeline manager.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service, generator Generator) *Manager {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if generator == nil {
		generator = NewGenerator(cfg, nil)
	}
	return &Manager{
		cfg:                cfg,
		store:              st,
		logger:             logging.NewComponentLogger(logger, "pipeline"),
		chain:              filters.NewChain(st, logger),
		generator:          generator,
		notifier:           notifier,
		pollInterval:       time.Duration(cfg.Pipeline.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Pipeline.ErrorRetryInterval) * time.Second,
		retryDelay:         time.Duration(cfg.Pipeline.RetryDelay) * time.Second,
		staleTimeout:       time.Duration(cfg.Pipeline.StaleProcessingTimeout) * time.Second,
		maxAttempts:        cfg.Pipeline.MaxAttempts,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	go m.runQualityLane(runCtx)
	go m.runProcessingLane(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// LastError returns the most recent lane error, for status output.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runQualityLane(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "quality-check")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		record, err := m.store.NextRecordForStages(ctx, store.StageDiscovered)
		if err != nil {
			m.handleLaneError(ctx, logger, err)
			continue
		}
		if record == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.QualityCheck(ctx, record); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("quality check failed",
				logging.Error(err),
				logging.Int64(logging.FieldRecordID, record.ID),
				logging.String(logging.FieldErrorCode, services.ErrorCode(err)))
			m.waitOrShutdown(ctx, m.errorRetryInterval)
		}
	}
}

func (m *Manager) runProcessingLane(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "processing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if m.staleTimeout > 0 {
			cutoff := time.Now().UTC().Add(-m.staleTimeout)
			if reclaimed, err := m.store.ReclaimStaleProcessing(ctx, cutoff); err != nil {
				logger.Warn("reclaim stale processing failed; stuck records may remain",
					logging.Error(err))
			} else if reclaimed > 0 {
				logger.Info("reclaimed stale processing records", logging.Int64("count", reclaimed))
			}
		}

		record, err := m.nextProcessable(ctx)
		if err != nil {
			m.handleLaneError(ctx, logger, err)
			continue
		}
		if record == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.Process(ctx, record); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("processing failed",
				logging.Error(err),
				logging.Int64(logging.FieldRecordID, record.ID),
				logging.String(logging.FieldErrorCode, services.ErrorCode(err)))
			m.waitOrShutdown(ctx, m.errorRetryInterval)
		}
	}
}

// nextProcessable prefers fresh approvals, then failed records whose retry
// delay has elapsed.
func (m *Manager) nextProcessable(ctx context.Context) (*store.PipelineRecord, error) {
	record, err := m.store.NextRecordForStages(ctx, store.StageApproved)
	if err != nil || record != nil {
		return record, err
	}

	failed, err := m.store.RecordsByStage(ctx, store.StageFailed, 0)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, candidate := range failed {
		if candidate.ProcessingAttempts >= m.maxAttempts {
			return candidate, nil
		}
		lastFailure := candidate.UpdatedAt
		if candidate.LastErrorAt != nil {
			lastFailure = *candidate.LastErrorAt
		}
		if now.Sub(lastFailure) >= m.retryDelay {
			return candidate, nil
		}
	}
	return nil, nil
}

// QualityCheck scores one discovered record and applies the filter chain
// verdict. Exposed for tests and the operator CLI's dry runs.
func (m *Manager) QualityCheck(ctx context.Context, record *store.PipelineRecord) error {
	item, err := m.store.GetItemByID(ctx, record.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "quality check",
			fmt.Sprintf("record %d has no item", record.ID), nil)
	}
	source, err := m.store.GetSourceByID(ctx, item.SourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "quality check",
			fmt.Sprintf("item %d has no source", item.ID), nil)
	}

	ctx = services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.BeginQualityCheck(ctx, record.ID); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			// Another writer claimed it first.
			return nil
		}
		return err
	}

	score, err := scoring.Score(scoring.Inputs{
		Relevance:    item.Relevance,
		Engagement:   item.Engagement,
		Freshness:    item.Freshness,
		SourceWeight: source.Weight,
	})
	if err != nil {
		// Bad sub-scores should have been stopped at ingest; park the item
		// for a human instead of wedging the lane.
		if verdictErr := m.store.RecordVerdict(ctx, record.ID, store.StageHoldForReview, "", false); verdictErr != nil {
			return verdictErr
		}
		logger.Warn("item held: invalid sub-scores", logging.Error(err))
		return nil
	}
	if err := m.store.UpdateItemScores(ctx, item.ID, item.Relevance, item.Engagement, item.Freshness, score); err != nil {
		return err
	}
	item.QualityScore = score

	verdict, err := m.chain.Evaluate(ctx, item, source.Name)
	if err != nil {
		return err
	}
	if err := m.store.RecordVerdict(ctx, record.ID, verdict.Stage, verdict.FilterName, verdict.AutoApproved); err != nil {
		return err
	}

	logger.Info("quality check complete",
		logging.Float64("score", score),
		logging.String(logging.FieldStage, string(verdict.Stage)),
		logging.String("filter", verdict.FilterName))

	if verdict.Stage == store.StageHoldForReview {
		if err := m.notifier.NotifyItemHeld(ctx, item.Title, verdict.Reason); err != nil {
			logger.Warn("review notification failed", logging.Error(err))
		}
	}
	return nil
}

// Process runs one approved or failed record through generation. Failed
// records past the retry budget are escalated to manual review instead.
func (m *Manager) Process(ctx context.Context, record *store.PipelineRecord) error {
	item, err := m.store.GetItemByID(ctx, record.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "process",
			fmt.Sprintf("record %d has no item", record.ID), nil)
	}

	ctx = services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(ctx, m.logger)

	if record.Stage == store.StageFailed && record.ProcessingAttempts >= m.maxAttempts {
		reason := fmt.Sprintf("retry budget exhausted after %d attempts", record.ProcessingAttempts)
		if record.LastError != "" {
			reason = fmt.Sprintf("%s; last error: %s", reason, record.LastError)
		}
		if err := m.store.EscalateToReview(ctx, record.ID, reason); err != nil {
			if errors.Is(err, store.ErrStageConflict) {
				return nil
			}
			return err
		}
		logger.Warn("item escalated to manual review",
			logging.Int("attempts", record.ProcessingAttempts))
		if err := m.notifier.NotifyItemHeld(ctx, item.Title, reason); err != nil {
			logger.Warn("review notification failed", logging.Error(err))
		}
		return nil
	}

	if err := m.store.BeginProcessing(ctx, record.ID, record.Stage); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			return nil
		}
		return err
	}

	contentRef, genErr := m.generator.Generate(ctx, item)
	if genErr != nil {
		if errors.Is(genErr, context.Canceled) {
			return genErr
		}
		if err := m.store.FailGeneration(ctx, record.ID, genErr.Error()); err != nil {
			return err
		}
		logger.Warn("generation failed",
			logging.Error(genErr),
			logging.String(logging.FieldErrorCode, services.ErrorCode(genErr)))
		return nil
	}

	if err := m.store.CompleteGeneration(ctx, record.ID, contentRef); err != nil {
		return err
	}
	logger.Info("generation complete", logging.String("content_ref", contentRef))
	return nil
}

func (m *Manager) handleLaneError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next pipeline record", logging.Error(err))
	m.waitOrShutdown(ctx, m.errorRetryInterval)
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
