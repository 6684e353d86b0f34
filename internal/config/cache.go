package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultCacheTTL applies when IDENTITY_CACHE_TTL is unset or not positive.
const DefaultCacheTTL = 30 * time.Second

// CacheConfig defines settings for the identity cache. When Enabled is false
// or no Redis client is available, every request resolves its identity from
// the database by username. TTL bounds how long a username -> account id
// mapping is kept. Prefix namespaces the keys.
type CacheConfig struct {
	Enabled bool          `envconfig:"IDENTITY_CACHE_ENABLED" default:"false"`
	TTL     time.Duration `envconfig:"IDENTITY_CACHE_TTL" default:"30s"`
	Prefix  string        `envconfig:"IDENTITY_CACHE_PREFIX" default:"identity"`
}

// LoadCacheConfig reads the IDENTITY_CACHE_* variables. A non-positive TTL
// falls back to DefaultCacheTTL.
func LoadCacheConfig() (CacheConfig, error) {
	var c CacheConfig
	if err := envconfig.Process("", &c); err != nil {
		return CacheConfig{}, fmt.Errorf("parse cache env: %w", err)
	}
	if c.TTL <= 0 {
		c.TTL = DefaultCacheTTL
	}
	return c, nil
}
