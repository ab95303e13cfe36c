package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	PGURL string
	AVKey string
	Port  string

	// SyncSchedule is a cron expression (with seconds) for the daily sync job.
	SyncSchedule string

	BackfillWorkers     int
	BackfillMaxAttempts int
	BackfillBackoff     time.Duration
	ProviderTimeout     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	pgURL := os.Getenv("PG_URL")
	if pgURL == "" {
		return nil, fmt.Errorf("PG_URL environment variable is required")
	}

	avKey := os.Getenv("AV_KEY")
	if avKey == "" {
		return nil, fmt.Errorf("AV_KEY environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	schedule := os.Getenv("SYNC_SCHEDULE")
	if schedule == "" {
		// 18:00 CET on weekdays, after the European close
		schedule = "0 0 17 * * MON-FRI"
	}

	workers, err := envInt("BACKFILL_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	maxAttempts, err := envInt("BACKFILL_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	backoff, err := envDuration("BACKFILL_BACKOFF", time.Minute)
	if err != nil {
		return nil, err
	}

	providerTimeout, err := envDuration("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		PGURL:               pgURL,
		AVKey:               avKey,
		Port:                port,
		SyncSchedule:        schedule,
		BackfillWorkers:     workers,
		BackfillMaxAttempts: maxAttempts,
		BackfillBackoff:     backoff,
		ProviderTimeout:     providerTimeout,
	}, nil
}

func envInt(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, v)
	}
	return v, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s): %w", name, err)
	}
	return v, nil
}
