package config

import (
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures the token bucket applied to write endpoints.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables.  Malformed values
// fall back to defaults.
func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        parseBool(envStr("RATE_LIMIT_ENABLED", "true"), true),
		Capacity:       atoi(envStr("RATE_LIMIT_CAPACITY", "30"), 30),
		RefillTokens:   atoi(envStr("RATE_LIMIT_REFILL_TOKENS", "1"), 1),
		RefillInterval: parseDur(envStr("RATE_LIMIT_REFILL_INTERVAL", "2s"), 2*time.Second),
		TTL:            parseDur(envStr("RATE_LIMIT_TTL", "10m"), 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func atoi(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func parseDur(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
