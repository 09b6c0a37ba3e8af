package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "CACHE_BACKEND", "CACHE_TTL", "RATE_LIMIT_PORTFOLIO", "RATE_LIMIT_ASSET", "RATE_LIMIT_WINDOW", "BATCH_CRON", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.RateLimit.PortfolioLimit)
	assert.Equal(t, 20, cfg.RateLimit.AssetLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, "0 0 3 * * *", cfg.Batch.Cron)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("RATE_LIMIT_ASSET", "5")
	t.Setenv("BATCH_IN_SERVER", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BATCH_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.RateLimit.AssetLimit)
	assert.True(t, cfg.Batch.InServer)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "postgres"},
			Cache:     CacheConfig{Backend: "memory"},
			RateLimit: RateLimitConfig{PortfolioLimit: 1, AssetLimit: 1},
			Batch:     BatchConfig{Size: 1},
			JWT:       JWTConfig{Secret: "s3cret"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"driver", func(c *Config) { c.Database.Driver = "oracle" }, "unsupported DB_DRIVER"},
		{"cache", func(c *Config) { c.Cache.Backend = "memcached" }, "unsupported CACHE_BACKEND"},
		{"limits", func(c *Config) { c.RateLimit.AssetLimit = 0 }, "rate limits must be positive"},
		{"batch", func(c *Config) { c.Batch.Size = 0 }, "BATCH_SIZE must be positive"},
		{"default secret only warns", func(c *Config) { c.JWT.Secret = defaultJWTSecret }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
