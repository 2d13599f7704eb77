// Package config resolves gym-agent settings from GYM_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gym-http/gymclient/internal/faults"
	"github.com/gym-http/gymclient/pkg/gym"
	"github.com/gym-http/gymclient/pkg/types"
)

// Config holds everything the CLI needs to build a client and its stores.
type Config struct {
	BaseURL      string
	RateLimitRPS float64
	RateBurst    int
	HistoryDB    string
	InfoPolicy   types.InfoPolicy
	LogLevel     slog.Level
	Faults       faults.Config
}

// DefaultEnvFiles are tried in order; the first one found is loaded.
var DefaultEnvFiles = []string{".env", "../../.env"}

// Load reads the first existing file of envFiles into the process
// environment (existing variables win) and then resolves Config from it.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv resolves Config from the current environment. Malformed numbers
// fall back to their defaults; an unknown info policy or log level is an error.
func FromEnv() (*Config, error) {
	cfg := &Config{
		BaseURL:      envString("GYM_BASE_URL", gym.DefaultBaseURL),
		RateLimitRPS: envFloat("GYM_RATE_LIMIT_RPS", 0),
		RateBurst:    envInt("GYM_RATE_BURST", 1),
		HistoryDB:    envString("GYM_HISTORY_DB", "gym-agent.db"),
		Faults: faults.Config{
			ErrorRate:     envFloat("GYM_FAULT_ERROR_RATE", 0),
			StatusRate:    envFloat("GYM_FAULT_STATUS_RATE", 0),
			StatusCode:    envInt("GYM_FAULT_STATUS_CODE", 0),
			CorruptRate:   envFloat("GYM_FAULT_CORRUPT_RATE", 0),
			LatencyJitter: time.Duration(envInt("GYM_FAULT_JITTER_MS", 0)) * time.Millisecond,
		},
	}

	policy, err := types.ParseInfoPolicy(os.Getenv("GYM_INFO_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("config: GYM_INFO_POLICY: %w", err)
	}
	cfg.InfoPolicy = policy

	level, err := ParseLevel(envString("GYM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("config: GYM_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level
	return cfg, nil
}

// FaultsEnabled reports whether any fault injection is configured.
func (c *Config) FaultsEnabled() bool {
	f := c.Faults
	return f.ErrorRate > 0 || f.StatusRate > 0 || f.CorruptRate > 0 || f.LatencyJitter > 0
}

// ClientOptions translates the configuration into gym client options.
func (c *Config) ClientOptions(logger *slog.Logger) []gym.Option {
	opts := []gym.Option{
		gym.WithInfoPolicy(c.InfoPolicy),
		gym.WithRateLimit(c.RateLimitRPS, c.RateBurst),
	}
	if logger != nil {
		opts = append(opts, gym.WithLogger(logger))
	}
	if c.FaultsEnabled() {
		opts = append(opts, gym.WithRoundTripper(faults.New(nil, c.Faults)))
	}
	return opts
}

// ParseLevel maps debug, info, warn or error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return l, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
