package config

func (c *Config) normalize() error {
	for _, target := range []*string{&c.DataDir, &c.LogDir} {
		if *target == "" {
			continue
		}
		expanded, err := expandPath(*target)
		if err != nil {
			return err
		}
		*target = expanded
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Scheduler.DefaultRateLimit == 0 {
		c.Scheduler.DefaultRateLimit = defaultRateLimitPerHour
	}
	return nil
}
