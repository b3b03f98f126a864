package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is disabled.
// Methods lists the HTTP methods to cache.  TTL defines the lifetime of cache
// entries.  Prefix namespaces the keys and MaxBodyBytes caps what is stored.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED" envDefault:"false"`
	Methods      []string      `env:"CACHE_METHODS" envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Caches reports whether responses to method are eligible for caching.
func (c CacheConfig) Caches(method string) bool {
	for _, m := range c.Methods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}
