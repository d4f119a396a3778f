package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("RIGBRIDGE_CONFIG")
	defer os.Setenv("RIGBRIDGE_CONFIG", originalEnv)

	os.Setenv("RIGBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidDeviceURL verifies config validation rejects a bad
// device URL before any infrastructure comes up.
func TestRun_InvalidDeviceURL(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
device:
  url: "http://not-a-websocket"

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

media:
  base_dir: "` + filepath.Join(tmpDir, "captures") + `"

logging:
  level: error
  format: json
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("RIGBRIDGE_CONFIG")
	defer os.Setenv("RIGBRIDGE_CONFIG", originalEnv)
	os.Setenv("RIGBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with non-websocket device URL")
	}
}

// TestGetConfigPath_Default verifies the default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("RIGBRIDGE_CONFIG")
	defer os.Setenv("RIGBRIDGE_CONFIG", originalEnv)

	os.Unsetenv("RIGBRIDGE_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies the environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("RIGBRIDGE_CONFIG")
	defer os.Setenv("RIGBRIDGE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("RIGBRIDGE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
