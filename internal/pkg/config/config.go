package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// Config holds the engine configuration. Values come from the built-in
// defaults, then the .flconfig file next to the executable, then FIELDLOG_*
// environment variables.
type Config struct {
	// Path is a custom log directory plus file prefix. Empty selects the
	// default locations.
	Path         string   `env:"FIELDLOG_PATH"`
	MaxFileSize  ByteSize `env:"FIELDLOG_MAX_FILE_SIZE"`
	MaxTotalSize ByteSize `env:"FIELDLOG_MAX_TOTAL_SIZE"`

	KeepTrace      KeepTime `env:"FIELDLOG_KEEP_TRACE"`
	KeepCheckpoint KeepTime `env:"FIELDLOG_KEEP_CHECKPOINT"`
	KeepInfo       KeepTime `env:"FIELDLOG_KEEP_INFO"`
	KeepNotice     KeepTime `env:"FIELDLOG_KEEP_NOTICE"`
	KeepWarning    KeepTime `env:"FIELDLOG_KEEP_WARNING"`
	KeepError      KeepTime `env:"FIELDLOG_KEEP_ERROR"`
	KeepCritical   KeepTime `env:"FIELDLOG_KEEP_CRITICAL"`

	// Redact lists data item names and JSON keys whose values are blanked.
	Redact []string `env:"FIELDLOG_REDACT_FIELDS" envSeparator:","`

	// LogLevel and DiagFile configure the engine's own diagnostic logger.
	LogLevel string `env:"FIELDLOG_LOG_LEVEL"`
	DiagFile string `env:"FIELDLOG_DIAG_FILE"`
}

// Default returns the built-in settings.
func Default() *Config {
	const day = KeepTime(24 * time.Hour)
	return &Config{
		MaxFileSize:    MiB,
		MaxTotalSize:   2 * GiB,
		KeepTrace:      KeepTime(3 * time.Hour),
		KeepCheckpoint: KeepTime(3 * time.Hour),
		KeepInfo:       5 * day,
		KeepNotice:     5 * day,
		KeepWarning:    30 * day,
		KeepError:      30 * day,
		KeepCritical:   30 * day,
		LogLevel:       "info",
	}
}

func (c *Config) keepField(p domain.Priority) *KeepTime {
	switch p {
	case domain.PriorityTrace:
		return &c.KeepTrace
	case domain.PriorityCheckpoint:
		return &c.KeepCheckpoint
	case domain.PriorityInfo:
		return &c.KeepInfo
	case domain.PriorityNotice:
		return &c.KeepNotice
	case domain.PriorityWarning:
		return &c.KeepWarning
	case domain.PriorityError:
		return &c.KeepError
	case domain.PriorityCritical:
		return &c.KeepCritical
	}
	return nil
}

// Keep returns the keep time of every priority, indexed by priority.
func (c *Config) Keep() [domain.PriorityCount]time.Duration {
	var out [domain.PriorityCount]time.Duration
	for _, p := range domain.Priorities() {
		out[p] = time.Duration(*c.keepField(p))
	}
	return out
}

// FileName returns the .flconfig path that belongs to the executable.
func FileName(exePath string) string {
	return strings.TrimSuffix(exePath, filepath.Ext(exePath)) + ".flconfig"
}

// Load builds the configuration for the executable at exePath. A malformed
// .flconfig is not fatal: the returned config then starts from the defaults
// and the error, matching ErrMalformed, is returned alongside it so the caller
// can warn about it.
func Load(exePath string) (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg, fileErr := LoadFile(FileName(exePath))
	if fileErr != nil && !errors.Is(fileErr, ErrMalformed) {
		return nil, fileErr
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, fileErr
}

// BasePaths lists the base paths to try, in order, for the executable at
// exePath: the configured path, then a log directory next to the executable,
// then the user cache directory and finally the temp directory.
func (c *Config) BasePaths(exePath string) []string {
	name := strings.TrimSuffix(filepath.Base(exePath), filepath.Ext(exePath))
	if name == "" || name == "." {
		name = "fieldlog"
	}
	var out []string
	if c.Path != "" {
		out = append(out, c.Path)
	}
	if exePath != "" {
		out = append(out, filepath.Join(filepath.Dir(exePath), "log", name))
	}
	if dir, err := os.UserCacheDir(); err == nil {
		out = append(out, filepath.Join(dir, "fieldlog", name))
	}
	return append(out, filepath.Join(os.TempDir(), "fieldlog", name))
}
