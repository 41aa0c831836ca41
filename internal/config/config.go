package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	RedisAddr          string
	SweepEvery         time.Duration
	SweepVolatility    string
	StartupSeedCareers bool
}

type WorkerConfig struct {
	DatabaseURL     string
	SweepEvery      time.Duration
	SweepVolatility string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CASHQUEST_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:               addr,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:          strings.TrimSpace(os.Getenv("CASHQUEST_JWT_SECRET")),
		TokenTTL:           envDurationDefault("CASHQUEST_TOKEN_TTL", 24*time.Hour),
		RedisAddr:          strings.TrimSpace(os.Getenv("CASHQUEST_REDIS_ADDR")),
		SweepEvery:         envDurationDefault("CASHQUEST_SWEEP_EVERY", 10*time.Minute),
		SweepVolatility:    envVolatilityDefault(),
		StartupSeedCareers: envBoolDefault("CASHQUEST_STARTUP_SEED_CAREERS", true),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("CASHQUEST_JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadWorkerFromEnv reads only what the sweep worker needs; it runs without
// the API's token settings.
func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SweepEvery:      envDurationDefault("CASHQUEST_SWEEP_EVERY", 10*time.Minute),
		SweepVolatility: envVolatilityDefault(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("CQ_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envVolatilityDefault() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CASHQUEST_SWEEP_VOLATILITY")))
	switch v {
	case "calm", "normal", "wild":
		return v
	default:
		return "normal"
	}
}
