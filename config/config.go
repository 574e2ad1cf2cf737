package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"

	RunnerProcess   = "process"
	RunnerInProcess = "inprocess"
)

type Config struct {
	Port            int
	Domain          string
	AuthSecret      string
	MaxUploadSizeMB int
	DataDir         string
	BehindProxy     bool

	Store  string
	Runner string

	StepTimeout       time.Duration
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	ReaperInterval time.Duration
	ReaperMaxAge   time.Duration

	SubmitRateLimit int
}

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "4000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxUploadSizeMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_SIZE_MB", "500"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
	}

	submitRateLimit, err := strconv.Atoi(getEnv("SUBMIT_RATE_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUBMIT_RATE_LIMIT: %w", err)
	}

	behindProxy, err := strconv.ParseBool(getEnv("BEHIND_PROXY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid BEHIND_PROXY: %w", err)
	}

	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}

	cfg := &Config{
		Port:            port,
		Domain:          getEnv("DOMAIN", "localhost:4000"),
		AuthSecret:      authSecret,
		MaxUploadSizeMB: maxUploadSizeMB,
		DataDir:         getEnv("DATA_DIR", "/data"),
		BehindProxy:     behindProxy,
		Store:           getEnv("STORE", StoreSQLite),
		Runner:          getEnv("RUNNER", RunnerProcess),
		SubmitRateLimit: submitRateLimit,
	}

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"STEP_TIMEOUT", "30m", &cfg.StepTimeout},
		{"JOB_TIMEOUT", "2h", &cfg.JobTimeout},
		{"HEARTBEAT_INTERVAL", "5s", &cfg.HeartbeatInterval},
		{"HEARTBEAT_TIMEOUT", "30s", &cfg.HeartbeatTimeout},
		{"REAPER_INTERVAL", "1h", &cfg.ReaperInterval},
		{"REAPER_MAX_AGE", "24h", &cfg.ReaperMaxAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreJSON:
	default:
		return fmt.Errorf("invalid STORE %q: want %s or %s", c.Store, StoreSQLite, StoreJSON)
	}
	switch c.Runner {
	case RunnerProcess, RunnerInProcess:
	default:
		return fmt.Errorf("invalid RUNNER %q: want %s or %s", c.Runner, RunnerProcess, RunnerInProcess)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)", c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.StepTimeout > c.JobTimeout {
		return fmt.Errorf("STEP_TIMEOUT (%s) must not exceed JOB_TIMEOUT (%s)", c.StepTimeout, c.JobTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
