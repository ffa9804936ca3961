package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"unixutils/pkg/tmppath"
)

// EnvPrefix is the prefix shared by every environment variable read by Load.
const EnvPrefix = "UNIXUTILS"

// Config holds everything needed to wire a unixutils instance. Every field
// is read from UNIXUTILS_<FIELD_NAME>, e.g. UNIXUTILS_TEMP_DIR; bare names
// such as PREFIX or STRICT are never consulted.
type Config struct {
	TempDir   string `split_words:"true"`
	Prefix    string `default:"unix_utils"`
	ChunkSize int    `split_words:"true" default:"65536"`
	Strict    bool   `default:"false"`

	LogLevel    string `split_words:"true" default:"info"`
	LogEncoding string `split_words:"true" default:"console"`
	LogOutput   string `split_words:"true" default:"stderr"`

	TracingEnabled  bool   `split_words:"true" default:"false"`
	TracingEndpoint string `split_words:"true" default:"localhost:4318"`

	FetchFailureThreshold int           `split_words:"true" default:"5"`
	FetchOpenTimeout      time.Duration `split_words:"true" default:"30s"`
}

// Load reads configuration from UNIXUTILS_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", cfg.ChunkSize)
	}
	if err := tmppath.ValidatePrefix(cfg.Prefix); err != nil {
		return nil, fmt.Errorf("invalid %s_PREFIX: %w", EnvPrefix, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or falls back to Default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		TempDir:               os.TempDir(),
		Prefix:                tmppath.DefaultPrefix,
		ChunkSize:             64 * 1024,
		LogLevel:              "info",
		LogEncoding:           "console",
		LogOutput:             "stderr",
		TracingEndpoint:       "localhost:4318",
		FetchFailureThreshold: 5,
		FetchOpenTimeout:      30 * time.Second,
	}
}
