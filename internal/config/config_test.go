package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Environment: EnvProduction,
		Database:    DatabaseConfig{Password: "db-password"},
		RateLimit:   RateLimitConfig{Enabled: true, WindowSeconds: 60, MaxRequests: 100},
		Mnemonic:    "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		ChainsFile:  "./chains.toml",
	}
}

func TestValidateProductionRequiresMnemonic(t *testing.T) {
	cfg := validConfig()
	cfg.Mnemonic = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when mnemonic is missing")
	}
	if !strings.Contains(err.Error(), "FACILITATOR_MNEMONIC") {
		t.Fatalf("expected mnemonic validation error, got: %v", err)
	}
}

func TestValidateProductionRequiresDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when DB password is missing in production")
	}
	if !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected db password validation error, got: %v", err)
	}
}

func TestValidateDevelopmentAllowsEmptyDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = EnvDevelopment
	cfg.Database.Password = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected validation to pass in development without a db password, got: %v", err)
	}
}

func TestValidateRequiresChainsFile(t *testing.T) {
	cfg := validConfig()
	cfg.ChainsFile = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when chains file path is missing")
	}
	if !strings.Contains(err.Error(), "CHAINS_FILE") {
		t.Fatalf("expected chains file validation error, got: %v", err)
	}
}

func TestValidateRejectsNonPositiveRateLimitFields(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.WindowSeconds = 0
	cfg.RateLimit.MaxRequests = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for non-positive rate limit fields")
	}
	if !strings.Contains(err.Error(), "RATE_LIMIT_WINDOW_SECONDS") || !strings.Contains(err.Error(), "RATE_LIMIT_MAX_REQUESTS") {
		t.Fatalf("expected both rate limit errors, got: %v", err)
	}
}

func TestValidatePassesWithFullConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got: %v", err)
	}
}

func TestIsDevelopmentAndIsProduction(t *testing.T) {
	cfg := &Config{Environment: EnvDevelopment}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatal("expected development environment predicates to match")
	}
	cfg.Environment = EnvProduction
	if cfg.IsDevelopment() || !cfg.IsProduction() {
		t.Fatal("expected production environment predicates to match")
	}
}
