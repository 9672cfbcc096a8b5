package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.tick_interval":          c.Scheduler.TickInterval,
		"scheduler.max_concurrent_fetches": c.Scheduler.MaxConcurrentFetches,
		"scheduler.fetch_timeout":          c.Scheduler.FetchTimeout,
		"scheduler.failure_threshold":      c.Scheduler.FailureThreshold,
		"scheduler.backoff_cap":            c.Scheduler.BackoffCap,
	}); err != nil {
		return err
	}
	if c.Scheduler.DefaultRateLimit < 0 {
		return errors.New("scheduler.default_rate_limit_per_hour must not be negative")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if err := ensurePositiveMap(map[string]int{
		"ingest.dedup_window_days": c.Ingest.DedupWindowDays,
		"ingest.hash_cache_size":   c.Ingest.HashCacheSize,
		"ingest.hash_cache_ttl":    c.Ingest.HashCacheTTL,
	}); err != nil {
		return err
	}
	for name, value := range map[string]float64{
		"ingest.default_relevance":  c.Ingest.DefaultRelevance,
		"ingest.default_engagement": c.Ingest.DefaultEngagement,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.poll_interval":            c.Pipeline.PollInterval,
		"pipeline.error_retry_interval":     c.Pipeline.ErrorRetryInterval,
		"pipeline.max_attempts":             c.Pipeline.MaxAttempts,
		"pipeline.retry_delay":              c.Pipeline.RetryDelay,
		"pipeline.stale_processing_timeout": c.Pipeline.StaleProcessingTimeout,
	})
}

func (c *Config) validateGeneration() error {
	if c.Generation.TimeoutSeconds <= 0 {
		return errors.New("generation.timeout_seconds must be positive")
	}
	if c.Generation.MaxRetries < 0 {
		return errors.New("generation.max_retries must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
