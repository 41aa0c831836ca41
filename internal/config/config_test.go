package config

import (
	"testing"
	"time"
)

func TestLoadWorkerFromEnvNeedsOnlyDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cashquest_test")
	t.Setenv("CASHQUEST_JWT_SECRET", "")
	t.Setenv("CASHQUEST_SWEEP_EVERY", "90s")
	t.Setenv("CASHQUEST_SWEEP_VOLATILITY", "wild")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SweepEvery != 90*time.Second {
		t.Fatalf("SweepEvery = %v, want 90s", cfg.SweepEvery)
	}
	if cfg.SweepVolatility != "wild" {
		t.Fatalf("SweepVolatility = %q, want wild", cfg.SweepVolatility)
	}
}

func TestLoadWorkerFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadWorkerFromEnv(); err == nil {
		t.Fatal("expected an error without DATABASE_URL")
	}
}
