package config

import "time"

// CacheConfig defines settings for the response cache placed in front of
// the read-only master data routes.  When Enabled is false or no Redis
// client is configured, caching is disabled.  KeyStrategy determines which
// parts of the request contribute to the cache key; MaxBodyBytes caps the
// stored body.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the MASTER_CACHE_* variables.  Only GET is cached
// unless MASTER_CACHE_METHODS says otherwise.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("MASTER_CACHE_ENABLED", true),
		Methods:      envSet("MASTER_CACHE_METHODS", "GET"),
		TTL:          envDur("MASTER_CACHE_TTL", time.Minute),
		KeyStrategy:  envStr("MASTER_CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("MASTER_CACHE_PREFIX", "kdx:master"),
		MaxBodyBytes: envInt("MASTER_CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	return cfg
}
