package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL            = "http://localhost:5000/api"
	DefaultPollInterval      = time.Second
	DefaultHandoffDelay      = time.Second
	DefaultNotStartedTimeout = 30 * time.Second
	DefaultRequestTimeout    = 2 * time.Minute

	// MaxUploadBytes is the advisory per-file ceiling; the server is authoritative.
	MaxUploadBytes = 50 << 20
)

// Config holds application configuration
type Config struct {
	APIURL  string
	DataDir string
	Debug   bool

	PollInterval      time.Duration
	HandoffDelay      time.Duration
	NotStartedTimeout time.Duration // 0 disables the check
	PollRetries       int           // consecutive failed polls tolerated before erroring
	RequestTimeout    time.Duration // 0 means no client-side timeout
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		APIURL:            DefaultAPIURL,
		DataDir:           defaultDataDir(),
		PollInterval:      DefaultPollInterval,
		HandoffDelay:      DefaultHandoffDelay,
		NotStartedTimeout: DefaultNotStartedTimeout,
		RequestTimeout:    DefaultRequestTimeout,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".assistant"
	}
	return filepath.Join(home, ".assistant")
}

// Load reads an optional .env file, then overlays environment variables on
// the defaults.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv-style lookup.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("ASSISTANT_API_URL"); v != "" {
		cfg.APIURL = v
	} else if v := getenv("VITE_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := getenv("ASSISTANT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if strings.EqualFold(getenv("LOG_LEVEL"), "debug") {
		cfg.Debug = true
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ASSISTANT_POLL_INTERVAL", &cfg.PollInterval},
		{"ASSISTANT_HANDOFF_DELAY", &cfg.HandoffDelay},
		{"ASSISTANT_NOT_STARTED_TIMEOUT", &cfg.NotStartedTimeout},
		{"ASSISTANT_REQUEST_TIMEOUT", &cfg.RequestTimeout},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := getenv("ASSISTANT_POLL_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ASSISTANT_POLL_RETRIES: %w", err)
		}
		cfg.PollRetries = n
	}

	return cfg, cfg.Validate()
}

// Validate checks that the resolved values are usable.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("config: api url %q must start with http:// or https://", c.APIURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	if c.HandoffDelay < 0 || c.NotStartedTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	if c.PollRetries < 0 {
		return fmt.Errorf("config: poll retries must not be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data dir is empty")
	}
	return nil
}

// LogDir is where rotated logs and telemetry exports are written.
func (c Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// SessionsDB is the path of the recent-sessions database.
func (c Config) SessionsDB() string {
	return filepath.Join(c.DataDir, "sessions.db")
}
