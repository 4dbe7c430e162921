package application

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// Config defines report pipeline configuration.
type Config struct {
	Defaults    DefaultsConfig `yaml:"defaults"`
	BatchSize   int            `yaml:"batch_size"`
	StorageRoot string         `yaml:"storage_root"`
	DaySplit    DaySplitMode   `yaml:"day_split"`
	Schedule    ScheduleConfig `yaml:"schedule"`
	Breaker     BreakerConfig  `yaml:"breaker"`
}

// DefaultsConfig is the policy applied when a store has no schedule or timezone.
type DefaultsConfig struct {
	Timezone string `yaml:"timezone"`
	OpenAt   string `yaml:"open_at"`
	CloseAt  string `yaml:"close_at"`
}

// ScheduleConfig triggers a report every day at DailyAt (HH:MM, UTC). Empty disables it.
type ScheduleConfig struct {
	DailyAt string `yaml:"daily_at"`
}

// BreakerConfig guards the data reader with a circuit breaker.
type BreakerConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	OpenSeconds         int    `yaml:"open_seconds"`
}

// LoadConfig loads config from the yaml file named by REPORT_CONFIG, then env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: DefaultsConfig{
			Timezone: getenvDefault("DEFAULT_TIMEZONE", monitoring.DefaultTimezone),
			OpenAt:   "00:00:00",
			CloseAt:  "24:00:00",
		},
		BatchSize:   getenvIntDefault("REPORT_BATCH_SIZE", DefaultBatchSize),
		StorageRoot: getenvDefault("REPORT_STORAGE_ROOT", filepath.FromSlash("var/reports")),
		DaySplit:    DaySplitMode(getenvDefault("REPORT_DAY_SPLIT", string(DaySplitWalk))),
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenSeconds:         30,
		},
	}

	if path := os.Getenv("REPORT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = os.Getenv("REPORT_DAILY_AT")
	}
	return cfg, cfg.Validate()
}

// Validate checks the loaded values.
func (c Config) Validate() error {
	if c.StorageRoot == "" {
		return errors.New("report config: storage root required")
	}
	if c.BatchSize <= 0 {
		return errors.New("report config: batch size must be positive")
	}
	if !c.DaySplit.IsValid() {
		return fmt.Errorf("report config: unknown day split %q", c.DaySplit)
	}
	if c.Schedule.DailyAt != "" {
		if _, _, err := parseDailyAt(c.Schedule.DailyAt); err != nil {
			return fmt.Errorf("report config: daily_at: %w", err)
		}
	}
	_, err := c.Policy()
	return err
}

// Policy builds the default policy consulted on lookup misses.
func (c Config) Policy() (monitoring.DefaultPolicy, error) {
	policy := monitoring.StandardPolicy()
	if c.Defaults.Timezone != "" {
		policy.Timezone = c.Defaults.Timezone
	}
	if c.Defaults.OpenAt != "" {
		start, err := monitoring.ParseClock(c.Defaults.OpenAt)
		if err != nil {
			return policy, fmt.Errorf("report config: open_at: %w", err)
		}
		policy.StartMinute = start
	}
	if c.Defaults.CloseAt != "" {
		end, err := monitoring.ParseClock(c.Defaults.CloseAt)
		if err != nil {
			return policy, fmt.Errorf("report config: close_at: %w", err)
		}
		policy.EndMinute = end
	}
	if policy.EndMinute < policy.StartMinute {
		return policy, errors.New("report config: close_at before open_at")
	}
	return policy, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
