package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Discovery
	MaxProductsFetch int
	RequestTimeout   time.Duration
	DetectTimeout    time.Duration
	DetectCacheTTL   time.Duration
	HTTPRetries      int

	// Extraction
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	BatchSize     int
	MaxConcurrent int
	Period        time.Duration
	PaceMin       time.Duration
	PaceMax       time.Duration

	// Anti-blocking
	UserAgents    []string
	DelayProfile  string // "off", "cautious", "normal", "aggressive"
	RatePerSecond float64
	RateBurst     int
	RespectRobots bool
	ProxyFile     string // file with one proxy URL per line

	// Browser
	BrowserSlots int
	BrowserBin   string
	BrowserURL   string // remote DevTools websocket; empty launches locally

	// Persistence
	LedgerBackend   string // "memory", "redis"
	RedisURL        string
	CompetitorsFile string

	// Logging
	LogLevel  string
	LogFormat string

	// HTTP server
	HTTPPort string
	APIKey   string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxProductsFetch: 500,
		RequestTimeout:   30 * time.Second,
		DetectTimeout:    5 * time.Second,
		DetectCacheTTL:   10 * time.Minute,
		HTTPRetries:      2,
		MaxRetries:       3,
		BackoffBase:      60 * time.Second,
		BackoffMax:       240 * time.Second,
		SoftTimeLimit:    270 * time.Second,
		HardTimeLimit:    300 * time.Second,
		BatchSize:        50,
		MaxConcurrent:    10,
		Period:           24 * time.Hour,
		PaceMin:          2 * time.Second,
		PaceMax:          5 * time.Second,
		DelayProfile:     "off",
		RatePerSecond:    2.0,
		RateBurst:        3,
		RespectRobots:    true,
		BrowserSlots:     3,
		LedgerBackend:    "memory",
		CompetitorsFile:  "competitors.yaml",
		LogLevel:         "info",
		LogFormat:        "text",
		HTTPPort:         "8080",
	}
}

// LoadFromEnv loads .env file (if present) then overrides config from environment variables.
// Malformed numbers and durations are reported rather than ignored.
func (c *Config) LoadFromEnv() error {
	// Auto-load .env file; silently ignored if missing
	_ = godotenv.Load()

	e := &envReader{}
	e.intVar("PRICEHAWK_MAX_PRODUCTS_FETCH", &c.MaxProductsFetch)
	e.durationVar("PRICEHAWK_REQUEST_TIMEOUT", &c.RequestTimeout)
	e.durationVar("PRICEHAWK_DETECT_TIMEOUT", &c.DetectTimeout)
	e.durationVar("PRICEHAWK_DETECT_CACHE_TTL", &c.DetectCacheTTL)
	e.intVar("PRICEHAWK_HTTP_RETRIES", &c.HTTPRetries)

	e.intVar("PRICEHAWK_MAX_RETRIES", &c.MaxRetries)
	e.durationVar("PRICEHAWK_BACKOFF_BASE", &c.BackoffBase)
	e.durationVar("PRICEHAWK_BACKOFF_MAX", &c.BackoffMax)
	e.durationVar("PRICEHAWK_SOFT_TIME_LIMIT", &c.SoftTimeLimit)
	e.durationVar("PRICEHAWK_HARD_TIME_LIMIT", &c.HardTimeLimit)
	e.intVar("PRICEHAWK_BATCH_SIZE", &c.BatchSize)
	e.intVar("PRICEHAWK_MAX_CONCURRENT", &c.MaxConcurrent)
	e.durationVar("PRICEHAWK_PERIOD", &c.Period)
	e.durationVar("PRICEHAWK_PACE_MIN", &c.PaceMin)
	e.durationVar("PRICEHAWK_PACE_MAX", &c.PaceMax)

	if v := os.Getenv("PRICEHAWK_USER_AGENTS"); v != "" {
		c.UserAgents = splitList(v)
	}
	e.strVar("PRICEHAWK_DELAY_PROFILE", &c.DelayProfile)
	e.floatVar("PRICEHAWK_RATE_PER_SECOND", &c.RatePerSecond)
	e.intVar("PRICEHAWK_RATE_BURST", &c.RateBurst)
	if v := os.Getenv("PRICEHAWK_RESPECT_ROBOTS"); v == "false" {
		c.RespectRobots = false
	}
	e.strVar("PRICEHAWK_PROXIES", &c.ProxyFile)

	e.intVar("PRICEHAWK_BROWSER_SLOTS", &c.BrowserSlots)
	e.strVar("PRICEHAWK_BROWSER_BIN", &c.BrowserBin)
	e.strVar("PRICEHAWK_BROWSER_URL", &c.BrowserURL)

	e.strVar("PRICEHAWK_LEDGER", &c.LedgerBackend)
	e.strVar("PRICEHAWK_REDIS_URL", &c.RedisURL)
	e.strVar("PRICEHAWK_COMPETITORS", &c.CompetitorsFile)

	e.strVar("PRICEHAWK_LOG_LEVEL", &c.LogLevel)
	e.strVar("PRICEHAWK_LOG_FORMAT", &c.LogFormat)

	e.strVar("PORT", &c.HTTPPort)
	e.strVar("PRICEHAWK_API_KEY", &c.APIKey)
	return e.err
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	switch {
	case c.MaxProductsFetch < 1:
		return fmt.Errorf("max products fetch must be positive")
	case c.RequestTimeout <= 0 || c.DetectTimeout <= 0:
		return fmt.Errorf("request and detect timeouts must be positive")
	case c.MaxRetries < 0 || c.HTTPRetries < 0:
		return fmt.Errorf("retry counts cannot be negative")
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("backoff max (%s) must be at least backoff base (%s)", c.BackoffMax, c.BackoffBase)
	case c.HardTimeLimit <= 0 || c.SoftTimeLimit <= 0 || c.SoftTimeLimit > c.HardTimeLimit:
		return fmt.Errorf("soft time limit (%s) must be positive and at most the hard limit (%s)", c.SoftTimeLimit, c.HardTimeLimit)
	case c.BatchSize < 1 || c.MaxConcurrent < 1 || c.BrowserSlots < 1:
		return fmt.Errorf("batch size, max concurrent and browser slots must be positive")
	case c.Period <= 0:
		return fmt.Errorf("period must be positive")
	case c.PaceMin < 0 || c.PaceMax < c.PaceMin:
		return fmt.Errorf("pace range %s-%s is invalid", c.PaceMin, c.PaceMax)
	case c.RatePerSecond <= 0 || c.RateBurst < 1:
		return fmt.Errorf("rate per second and burst must be positive")
	}

	switch c.DelayProfile {
	case "off", "cautious", "normal", "aggressive":
	default:
		return fmt.Errorf("unknown delay profile: %s (valid: off, cautious, normal, aggressive)", c.DelayProfile)
	}
	switch c.LedgerBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("redis ledger requires PRICEHAWK_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown ledger backend: %s (valid: memory, redis)", c.LedgerBackend)
	}
	return nil
}

type envReader struct {
	err error
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) strVar(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) floatVar(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

// durationVar accepts Go durations ("90s") or a bare number of seconds.
func (e *envReader) durationVar(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
