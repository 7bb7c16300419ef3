package config

import (
	"time"
)

// EnrichmentConfig bounds a single enrichment invocation. SoftTimeLimit must be
// lower than HardTimeLimit.
type EnrichmentConfig struct {
	BatchSize         int
	MaxRetries        int
	RetryDelay        time.Duration
	ContinuationDelay time.Duration
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	MaxChain          int
}

func loadEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		BatchSize:         getEnvInt("ENRICHMENT_BATCH_SIZE", 50),
		MaxRetries:        getEnvInt("ENRICHMENT_MAX_RETRIES", 3),
		RetryDelay:        getEnvDuration("ENRICHMENT_RETRY_DELAY", 5*time.Minute),
		ContinuationDelay: getEnvDuration("ENRICHMENT_CONTINUATION_DELAY", 10*time.Second),
		SoftTimeLimit:     getEnvDuration("ENRICHMENT_SOFT_TIME_LIMIT", 25*time.Minute),
		HardTimeLimit:     getEnvDuration("ENRICHMENT_HARD_TIME_LIMIT", 30*time.Minute),
		MaxChain:          getEnvInt("ENRICHMENT_MAX_CHAIN", 200),
	}
}
