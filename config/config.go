package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped to config keys,
// e.g. MEDIASYS_DATABASE_DSN -> database_dsn.
const EnvPrefix = "MEDIASYS_"

const (
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "mediasys.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultRetryMaxTries  = 3
)

type Config struct {
	// database connection
	DatabaseDriver string `koanf:"database_driver" validate:"required,oneof=sqlite postgres"`
	DatabaseDSN    string `koanf:"database_dsn" validate:"required"`

	// logging
	LogLevel  string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"required,oneof=console json"`

	// takestamp maintenance
	RecomputeWorkers int  `koanf:"recompute_workers" validate:"gte=1,lte=256"`
	RetryMaxTries    uint `koanf:"retry_max_tries" validate:"gte=1,lte=20"`

	// source directory scanned by the importer; resolved to an absolute path
	ImportRoot string `koanf:"import_root"`
}

// Defaults returns the configuration used for any key the environment leaves unset.
func Defaults() Config {
	return Config{
		DatabaseDriver:   defaultDatabaseDriver,
		DatabaseDSN:      defaultDatabaseDSN,
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		RecomputeWorkers: runtime.NumCPU(),
		RetryMaxTries:    defaultRetryMaxTries,
		ImportRoot:       ".",
	}
}

// LoadConfig reads MEDIASYS_* environment variables over the defaults and validates the result.
// Callers that want .env support load it into the process environment first.
func LoadConfig() (Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	absRoot, err := filepath.Abs(cfg.ImportRoot)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for import root '%s': %w", cfg.ImportRoot, err)
	}
	cfg.ImportRoot = absRoot

	return cfg, nil
}
