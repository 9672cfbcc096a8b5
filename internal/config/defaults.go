package config

const (
	defaultDataDir = "~/.local/share/scout"
	defaultLogDir  = "~/.local/share/scout/logs"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultTickInterval         = 60
	defaultMaxConcurrentFetches = 4
	defaultFetchTimeout         = 120
	defaultFailureThreshold     = 5
	defaultBackoffCap           = 21600
	defaultRateLimitPerHour     = 60

	defaultDedupWindowDays = 7
	defaultHashCacheSize   = 4096
	defaultHashCacheTTL    = 3600

	defaultPipelinePollInterval   = 5
	defaultPipelineErrorRetry     = 10
	defaultPipelineMaxAttempts    = 3
	defaultPipelineRetryDelay     = 30
	defaultStaleProcessingTimeout = 900

	defaultGenerationTimeout = 300
	defaultGenerationRetries = 2

	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Scheduler: Scheduler{
			TickInterval:         defaultTickInterval,
			MaxConcurrentFetches: defaultMaxConcurrentFetches,
			FetchTimeout:         defaultFetchTimeout,
			FailureThreshold:     defaultFailureThreshold,
			BackoffCap:           defaultBackoffCap,
			DefaultRateLimit:     defaultRateLimitPerHour,
		},
		Ingest: Ingest{
			DedupWindowDays:   defaultDedupWindowDays,
			HashCacheSize:     defaultHashCacheSize,
			HashCacheTTL:      defaultHashCacheTTL,
			DefaultRelevance:  0.5,
			DefaultEngagement: 0.5,
		},
		Pipeline: Pipeline{
			PollInterval:           defaultPipelinePollInterval,
			ErrorRetryInterval:     defaultPipelineErrorRetry,
			MaxAttempts:            defaultPipelineMaxAttempts,
			RetryDelay:             defaultPipelineRetryDelay,
			StaleProcessingTimeout: defaultStaleProcessingTimeout,
		},
		Generation: Generation{
			TimeoutSeconds: defaultGenerationTimeout,
			MaxRetries:     defaultGenerationRetries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SourceHealth:   true,
			Review:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
