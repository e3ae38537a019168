// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Get returns an environment variable or default value.
func Get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetInt returns an integer environment variable or default value.
func GetInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetFloat returns a float environment variable or default value.
func GetFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetDuration returns a duration environment variable or default value.
func GetDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Service is the fraudshield service configuration.
type Service struct {
	Port           int
	FraudThreshold float64
	NodeTimeout    time.Duration
	RedisAddr      string // empty disables the Redis model store
	PostgresDSN    string // empty disables the audit store
	APISecret      string // empty disables auth on model admin endpoints
	OTLPEndpoint   string
}

// Load reads the service configuration from the environment.
func Load() Service {
	return Service{
		Port:           GetInt("FRAUDSHIELD_PORT", 8080),
		FraudThreshold: GetFloat("FRAUDSHIELD_FRAUD_THRESHOLD", -1),
		NodeTimeout:    GetDuration("FRAUDSHIELD_NODE_TIMEOUT", 0),
		RedisAddr:      Get("FRAUDSHIELD_REDIS_ADDR", ""),
		PostgresDSN:    Get("FRAUDSHIELD_POSTGRES_DSN", ""),
		APISecret:      Get("FRAUDSHIELD_API_SECRET", ""),
		OTLPEndpoint:   Get("FRAUDSHIELD_OTLP_ENDPOINT", ""),
	}
}
