package config

// This file defines a Redis client constructor for the application.  Redis is
// used for distributed rate limiting and HTTP response caching.  If the
// connection fails during startup, NewRedisClient returns nil and callers
// degrade gracefully by disabling caching and rate limiting.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection parameters.  Host and Port take
// precedence over Addr when both are set.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

// Address resolves the host:port the client should dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	if c.Addr == "" {
		return "localhost:6379"
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The returned client is nil if a connection cannot be established.
func NewRedisClient(ctx context.Context, cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
