package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic string   `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	AuthSecret    string   `mapstructure:"AUTH_SECRET"`

	// Financial lock override. The PIN is an opaque shared secret checked by
	// the gate; matching it yields a short-lived signed token.
	OverridePIN         string        `mapstructure:"OVERRIDE_PIN"`
	OverrideTokenSecret string        `mapstructure:"OVERRIDE_TOKEN_SECRET"`
	OverrideTokenTTL    time.Duration `mapstructure:"OVERRIDE_TOKEN_TTL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("OVERRIDE_TOKEN_TTL", "2m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_CLINIC")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("OVERRIDE_PIN")
	v.BindEnv("OVERRIDE_TOKEN_SECRET")
	v.BindEnv("OVERRIDE_TOKEN_TTL")

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development,
// authentication and the override secrets must be configured so the financial
// lock cannot be bypassed with a default value.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV is not development")
	}
	if c.OverridePIN == "" {
		return fmt.Errorf("OVERRIDE_PIN is required when ENV is not development")
	}
	if c.OverrideTokenSecret == "" {
		return fmt.Errorf("OVERRIDE_TOKEN_SECRET is required when ENV is not development")
	}
	if c.OverrideTokenTTL <= 0 {
		return fmt.Errorf("OVERRIDE_TOKEN_TTL must be positive, got %s", c.OverrideTokenTTL)
	}
	return nil
}
