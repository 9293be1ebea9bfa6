package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("STORYBEAM_DB_DSN", "file:storybeam.db?cache=shared")
	t.Setenv("STORYBEAM_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("STORYBEAM_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORYBEAM_DB_DSN", "file:storybeam.db")
	t.Setenv("STORYBEAM_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("STORYBEAM_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported backend to fail")
	}
}

func TestLoadProductionRequiresAdminPassword(t *testing.T) {
	t.Setenv("STORYBEAM_DB_DSN", "file:storybeam.db")
	t.Setenv("STORYBEAM_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("STORYBEAM_ENV", "production")
	t.Setenv("STORYBEAM_ADMIN_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without admin password")
	}

	t.Setenv("STORYBEAM_ADMIN_PASSWORD", "strongpassword")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with admin password to succeed: %v", err)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("STORYBEAM_DB_DSN", "file:storybeam.db")
	t.Setenv("STORYBEAM_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
