package config

// This file defines a Redis client constructor for the application. Redis
// backs the identity cache used by the request authenticator. If the
// connection fails during startup, the constructor returns nil and callers
// degrade gracefully by resolving identities straight from the database.

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes how to reach the Redis server.
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (used when host/port are not both set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

// LoadRedisConfig reads the REDIS_* variables.
func LoadRedisConfig() (RedisConfig, error) {
	var c RedisConfig
	if err := envconfig.Process("", &c); err != nil {
		return RedisConfig{}, fmt.Errorf("parse redis env: %w", err)
	}
	return c, nil
}

// Address resolves the effective host:port.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return net.JoinHostPort(c.Host, c.Port)
	}
	return c.Addr
}

// TLSConfig returns nil unless TLS is enabled. The server name is taken from
// the effective address so REDIS_ADDR alone is enough.
func (c RedisConfig) TLSConfig() *tls.Config {
	if !c.TLS {
		return nil
	}
	host, _, err := net.SplitHostPort(c.Address())
	if err != nil {
		host = c.Address()
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout. The returned client is nil if the server cannot be reached.
func NewRedisClient(c RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:      c.Address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: c.TLSConfig(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
