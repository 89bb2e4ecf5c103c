package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RLSTUDIO_ENV", "testing")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != Testing {
		t.Fatalf("expected testing env, got %s", cfg.Env)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.ComputeBackendURL == "" {
		t.Fatal("expected a default compute backend URL")
	}
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("RLSTUDIO_ENV", "staging")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unrecognized RLSTUDIO_ENV value")
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("RLSTUDIO_ENV", "development")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 9999 {
		t.Fatalf("expected overridden HTTP port, got %d", cfg.HTTPPort)
	}
	if cfg.RateLimitEnabled {
		t.Fatal("expected rate limiting disabled by env override")
	}
}

func TestValidateRequiresPostgresInProduction(t *testing.T) {
	cfg := &Config{Env: Production, HTTPPort: 8080, RateLimitEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production validation to require a Postgres DSN")
	}
	cfg.PostgresDSN = "postgres://localhost/rlstudio"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got: %v", err)
	}
}

func TestValidateRejectsInvalidPort(t *testing.T) {
	cfg := &Config{Env: Development, HTTPPort: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an out-of-range HTTP port")
	}
}
