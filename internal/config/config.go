package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/stashlink/internal/logging"
	"github.com/sydlexius/stashlink/internal/reconcile"
	"github.com/sydlexius/stashlink/internal/registry"
	"github.com/sydlexius/stashlink/internal/similarity"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  logging.Config `yaml:"logging"`
	Match    MatchConfig    `yaml:"match"`
	Stashbox StashboxConfig `yaml:"stashbox"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Sources  []SourceConfig `yaml:"sources"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatchConfig holds matching and apply settings.
type MatchConfig struct {
	// Threshold is the minimum top score for the auto bucket.
	Threshold   int                    `yaml:"threshold"`
	Confidence  similarity.Thresholds  `yaml:"confidence"`
	PageSize    int                    `yaml:"page_size"`
	SearchLimit int                    `yaml:"search_limit"`
	Apply       reconcile.ApplyOptions `yaml:"apply"`
}

// StashboxConfig holds HTTP client settings shared by all sources.
type StashboxConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig holds per-source circuit breaker settings.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// SourceConfig describes one remote registry. APIKey and Endpoint may
// reference environment variables as ${VAR}.
type SourceConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Endpoint  string  `yaml:"endpoint"`
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "stashlink.db",
		},
		Logging: logging.DefaultConfig(),
		Match: MatchConfig{
			Threshold:   similarity.DefaultHighThreshold,
			Confidence:  similarity.DefaultThresholds(),
			PageSize:    50,
			SearchLimit: reconcile.DefaultSearchLimit,
			Apply:       reconcile.DefaultApplyOptions(),
		},
		Stashbox: StashboxConfig{
			Timeout: 15 * time.Second,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: registry.DefaultBreakerSettings().ConsecutiveFailures,
			OpenTimeout:         registry.DefaultBreakerSettings().OpenTimeout,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	cfg.expandSources()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("SL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SL_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("SL_MATCH_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SL_MATCH_THRESHOLD: %w", err)
		}
		c.Match.Threshold = n
	}
	if v := os.Getenv("SL_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SL_PAGE_SIZE: %w", err)
		}
		c.Match.PageSize = n
	}
	return nil
}

func (c *Config) expandSources() {
	for i := range c.Sources {
		c.Sources[i].Endpoint = os.ExpandEnv(c.Sources[i].Endpoint)
		c.Sources[i].APIKey = os.ExpandEnv(c.Sources[i].APIKey)
	}
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	m := c.Match
	if m.Threshold < 0 || m.Threshold > 100 {
		return fmt.Errorf("match threshold must be between 0 and 100, got %d", m.Threshold)
	}
	if m.Confidence.High < 0 || m.Confidence.High > 100 || m.Confidence.Medium < 0 {
		return fmt.Errorf("confidence thresholds must be between 0 and 100")
	}
	if m.Confidence.Medium > m.Confidence.High {
		return fmt.Errorf("medium confidence (%d) is above high confidence (%d)", m.Confidence.Medium, m.Confidence.High)
	}
	if m.PageSize < 1 || m.PageSize > 500 {
		return fmt.Errorf("page size must be between 1 and 500, got %d", m.PageSize)
	}
	if m.SearchLimit < 1 {
		return fmt.Errorf("search limit must be positive, got %d", m.SearchLimit)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = true

		u, err := url.Parse(s.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source %s: endpoint must be an http(s) URL, got %q", s.ID, s.Endpoint)
		}
		if s.RateLimit < 0 {
			return fmt.Errorf("source %s: rate limit must not be negative", s.ID)
		}
	}
	return nil
}

// RegistrySources returns the configured sources in declaration order.
func (c *Config) RegistrySources() []registry.Source {
	out := make([]registry.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, registry.Source{
			ID:          s.ID,
			DisplayName: s.Name,
			Endpoint:    registry.Endpoint{URL: s.Endpoint, APIKey: s.APIKey},
		})
	}
	return out
}

// RateLimits returns requests per second by source ID. Sources without an
// explicit limit get registry.DefaultRequestsPerSecond.
func (c *Config) RateLimits() map[string]float64 {
	out := make(map[string]float64, len(c.Sources))
	for _, s := range c.Sources {
		rps := s.RateLimit
		if rps == 0 {
			rps = registry.DefaultRequestsPerSecond
		}
		out[s.ID] = rps
	}
	return out
}

// BreakerSettings converts the breaker section.
func (c *Config) BreakerSettings() registry.BreakerSettings {
	return registry.BreakerSettings{
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
		OpenTimeout:         c.Breaker.OpenTimeout,
		HalfOpenRequests:    1,
	}
}
