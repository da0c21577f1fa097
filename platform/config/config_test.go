package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/glasswallet")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("TOKEN_ENCRYPTION_SECRET", "token-encryption-secret")
	t.Setenv("CORS_ALLOW_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("CREDIT_PULL_COST", "100")
	t.Setenv("CREDIT_PREQUALIFY_COST", "50")
	t.Setenv("RULE_CONFLICT_POLICY", "cumulative")
	t.Setenv("PIXEL_SANDBOX", "true")
	t.Setenv("OUTBOX_POLL_INTERVAL", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GetCreditPullCost() != 100 || cfg.GetCreditPreQualifyCost() != 50 {
		t.Fatalf("unexpected costs %d/%d", cfg.GetCreditPullCost(), cfg.GetCreditPreQualifyCost())
	}
	if !cfg.IsPixelSandbox() {
		t.Fatalf("expected sandbox in development")
	}
	if cfg.GetOutboxPollInterval() != 2*time.Second {
		t.Fatalf("expected fallback poll interval, got %s", cfg.GetOutboxPollInterval())
	}
}

func TestLoadRequiresTokenSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_ENCRYPTION_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when TOKEN_ENCRYPTION_SECRET is empty")
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("CREDIT_PULL_COST", "100")
	t.Setenv("CREDIT_PREQUALIFY_COST", "50")
	t.Setenv("RULE_CONFLICT_POLICY", "last_write")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown conflict policy")
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("5s", time.Second); got != 5*time.Second {
		t.Fatalf("expected 5s, got %s", got)
	}
	if got := ParseDuration("-1s", time.Second); got != time.Second {
		t.Fatalf("expected fallback for negative, got %s", got)
	}
}
