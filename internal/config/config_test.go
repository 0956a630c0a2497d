package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is empty")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.DefaultClinic != "default" {
		t.Errorf("expected default clinic, got %s", cfg.DefaultClinic)
	}
	if cfg.OverrideTokenTTL != 2*time.Minute {
		t.Errorf("expected 2m override TTL, got %s", cfg.OverrideTokenTTL)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
}

func TestValidate_DevSkipsSecrets(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("development config should validate, got %v", err)
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production config without AUTH_SECRET")
	}

	cfg.AuthSecret = "s"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production config without OVERRIDE_PIN")
	}

	cfg.OverridePIN = "1234"
	cfg.OverrideTokenSecret = "secret"
	cfg.OverrideTokenTTL = time.Minute
	if err := cfg.Validate(); err != nil {
		t.Errorf("fully configured production config should validate, got %v", err)
	}
}
