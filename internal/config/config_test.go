package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "beanstash")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.True(t, cfg.DBMigrate)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL())
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.False(t, cfg.EventsEnabled)

	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "identity", cfg.Cache.Prefix)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, ".env", "JWT_SECRET="+testSecret+"\nDB_DRIVER=sqlite\nDB_DSN=file:test.db\nACCESS_TOKEN_TTL_HOURS=2\n")
	// godotenv never overrides variables that are already set, so make sure
	// the ones under test are absent and restored afterwards.
	for _, k := range []string{"JWT_SECRET", "DB_DRIVER", "DB_DSN", "ACCESS_TOKEN_TTL_HOURS"} {
		t.Setenv(k, "")
		unsetenv(t, k)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "file:test.db", cfg.DBDSN)
	assert.Equal(t, 2*time.Hour, cfg.AccessTTL())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")
	unsetenv(t, "JWT_SECRET")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	valid := Config{
		DBDriver:       DriverMySQL,
		DBUser:         "app",
		DBName:         "beanstash",
		JWTSecret:      testSecret,
		AccessTTLHours: 1,
		BcryptCost:     10,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }, "unsupported DB_DRIVER"},
		{"mysql without user", func(c *Config) { c.DBUser = "" }, "DB_USER"},
		{"sqlite without dsn", func(c *Config) { c.DBDriver = DriverSQLite }, "DB_DSN"},
		{"zero ttl", func(c *Config) { c.AccessTTLHours = 0 }, "ACCESS_TOKEN_TTL_HOURS"},
		{"cost too low", func(c *Config) { c.BcryptCost = 1 }, "BCRYPT_COST"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestRedisConfig_Address(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380", Addr: "ignored:1"}.Address())
	assert.Equal(t, "other:6379", RedisConfig{Host: "cache", Addr: "other:6379"}.Address())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	assert.Nil(t, NewRedisClient(RedisConfig{Addr: "127.0.0.1:1"}))
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
}

// unsetenv removes k for the rest of the test. Callers run t.Setenv first so
// the original value is restored on cleanup.
func unsetenv(t *testing.T, k string) {
	t.Helper()
	require.NoError(t, os.Unsetenv(k))
}

func TestLoadCacheConfig_NonPositiveTTL(t *testing.T) {
	t.Setenv("IDENTITY_CACHE_TTL", "0s")
	c, err := LoadCacheConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, c.TTL)
}

func TestRedisConfig_TLSConfig(t *testing.T) {
	assert.Nil(t, RedisConfig{Addr: "cache.internal:6380"}.TLSConfig())

	tc := RedisConfig{Addr: "cache.internal:6380", TLS: true}.TLSConfig()
	require.NotNil(t, tc)
	assert.Equal(t, "cache.internal", tc.ServerName)

	tc = RedisConfig{Host: "redis.example.net", Port: "6379", TLS: true}.TLSConfig()
	assert.Equal(t, "redis.example.net", tc.ServerName)
}
