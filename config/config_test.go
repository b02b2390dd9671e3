package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 500, c.MaxProductsFetch)
	assert.Equal(t, 60*time.Second, c.BackoffBase)
	assert.Equal(t, 50, c.BatchSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRICEHAWK_MAX_PRODUCTS_FETCH", "1000")
	t.Setenv("PRICEHAWK_BACKOFF_BASE", "30")
	t.Setenv("PRICEHAWK_HARD_TIME_LIMIT", "10m")
	t.Setenv("PRICEHAWK_USER_AGENTS", "UA-1, UA-2,,")
	t.Setenv("PRICEHAWK_RESPECT_ROBOTS", "false")
	t.Setenv("PRICEHAWK_LEDGER", "redis")
	t.Setenv("PRICEHAWK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "9090")

	c := DefaultConfig()
	require.NoError(t, c.LoadFromEnv())

	assert.Equal(t, 1000, c.MaxProductsFetch)
	assert.Equal(t, 30*time.Second, c.BackoffBase)
	assert.Equal(t, 10*time.Minute, c.HardTimeLimit)
	assert.Equal(t, []string{"UA-1", "UA-2"}, c.UserAgents)
	assert.False(t, c.RespectRobots)
	assert.Equal(t, "9090", c.HTTPPort)
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	t.Setenv("PRICEHAWK_BATCH_SIZE", "fifty")
	c := DefaultConfig()
	err := c.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRICEHAWK_BATCH_SIZE")
	assert.Equal(t, 50, c.BatchSize)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"soft over hard":   func(c *Config) { c.SoftTimeLimit = c.HardTimeLimit + time.Second },
		"backoff inverted": func(c *Config) { c.BackoffMax = time.Second },
		"zero batch":       func(c *Config) { c.BatchSize = 0 },
		"bad profile":      func(c *Config) { c.DelayProfile = "turbo" },
		"redis no url":     func(c *Config) { c.LedgerBackend = "redis" },
		"bad ledger":       func(c *Config) { c.LedgerBackend = "postgres" },
		"pace inverted":    func(c *Config) { c.PaceMin, c.PaceMax = 5*time.Second, time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
