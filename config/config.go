package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"candleseq/internal/criteria"
	"candleseq/internal/sequence"
	"candleseq/internal/timeframe"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string // empty disables publishing
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string
	LogLevel      string

	// Analysis
	Symbols     string // comma-separated, source order for pattern search
	Profile     string // timeframe profile name
	ProfileFile string // optional YAML profile overrides
	Preset      string // "primary", "secondary" or a custom "1,5,9,..." list
	Detectors   string // comma-separated: iou, iov
	Limit       string // body magnitude limit, decimal
	Tolerance   string // tolerance band half-width, decimal
	Lookback    time.Duration
	MaxBranches int

	// Scheduling (robfig/cron with seconds field)
	AnalyzeCron string
	RunOnStart  bool

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candleseq.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8081"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Symbols:     getEnv("SYMBOLS", "EURUSD,GBPUSD,USDJPY"),
		Profile:     getEnv("PROFILE", "H1"),
		ProfileFile: getEnv("PROFILE_FILE", ""),
		Preset:      getEnv("PRESET", "primary"),
		Detectors:   getEnv("DETECTORS", "iou,iov"),
		Limit:       getEnv("LIMIT", "0.0010"),
		Tolerance:   getEnv("TOLERANCE", "0"),
		Lookback:    getDuration("LOOKBACK", 10*24*time.Hour),
		MaxBranches: getInt("MAX_BRANCHES", 1000),

		// One minute past every hour
		AnalyzeCron: getEnv("ANALYZE_CRON", "0 1 * * * *"),
		RunOnStart:  getEnv("RUN_ON_START", "false") == "true",

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParseSymbols splits Symbols, keeping order and dropping blanks and repeats.
func (c *Config) ParseSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range strings.Split(c.Symbols, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ParseDetectors builds one criteria config per listed detector, sharing
// Limit and Tolerance.
func (c *Config) ParseDetectors() ([]criteria.Config, error) {
	limit, err := decimal.NewFromString(strings.TrimSpace(c.Limit))
	if err != nil {
		return nil, fmt.Errorf("config: LIMIT %q: %w", c.Limit, err)
	}
	tol, err := decimal.NewFromString(strings.TrimSpace(c.Tolerance))
	if err != nil {
		return nil, fmt.Errorf("config: TOLERANCE %q: %w", c.Tolerance, err)
	}
	if limit.IsNegative() || tol.IsNegative() {
		return nil, fmt.Errorf("config: LIMIT and TOLERANCE must not be negative")
	}

	var out []criteria.Config
	for _, name := range strings.Split(c.Detectors, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		mode, err := criteria.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		out = append(out, criteria.Config{Mode: mode, Limit: limit, Tolerance: tol})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: no detectors configured")
	}
	return out, nil
}

// ParsePreset resolves Preset as a named preset or a comma-separated step list.
func (c *Config) ParsePreset() (sequence.Preset, error) {
	if strings.Contains(c.Preset, ",") {
		return sequence.ParseSteps("custom", c.Preset)
	}
	return sequence.LookupPreset(c.Preset)
}

// Registry builds the timeframe registry, applying ProfileFile overrides
// when set.
func (c *Config) Registry() (*timeframe.Registry, error) {
	var overrides []timeframe.Profile
	if c.ProfileFile != "" {
		ps, err := LoadProfiles(c.ProfileFile)
		if err != nil {
			return nil, err
		}
		overrides = ps
	}
	return timeframe.NewRegistry(overrides...)
}

// ResolveProfile returns the configured timeframe profile.
func (c *Config) ResolveProfile() (timeframe.Profile, error) {
	reg, err := c.Registry()
	if err != nil {
		return timeframe.Profile{}, err
	}
	return reg.Lookup(c.Profile)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
