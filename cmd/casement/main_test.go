package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestConfig writes a config file and points CASEMENT_CONFIG at it.
func writeTestConfig(t *testing.T, content string) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("CASEMENT_CONFIG", configPath)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CASEMENT_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingJWTSecret verifies run refuses a config without a
// signing secret.
func TestRun_MissingJWTSecret(t *testing.T) {
	t.Setenv("CASEMENT_JWT_SECRET", "")
	writeTestConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("CASEMENT_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("CASEMENT_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown runs a full startup with MQTT and InfluxDB
// disabled, then shuts down on context expiry.
func TestRun_StartupAndShutdown(t *testing.T) {
	t.Setenv("CASEMENT_JWT_SECRET", "test-secret-0123456789abcdef0123456789abcdef")
	writeTestConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  host: "127.0.0.1"
  port: 18090

logging:
  level: error
  format: text
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}

// TestRun_DegradedWithoutCredentialStore verifies startup continues when
// the database cannot be opened.
func TestRun_DegradedWithoutCredentialStore(t *testing.T) {
	// A regular file where the database directory should be makes
	// database.Open fail.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0600); err != nil {
		t.Fatalf("writing blocker file: %v", err)
	}

	t.Setenv("CASEMENT_JWT_SECRET", "test-secret-0123456789abcdef0123456789abcdef")
	writeTestConfig(t, `
database:
  path: "`+filepath.Join(blocker, "sub", "test.db")+`"

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  host: "127.0.0.1"
  port: 18091

logging:
  level: error
  format: text
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want degraded startup and clean shutdown", err)
	}
}
