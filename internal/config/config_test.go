package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8000"
`

// clearOverrides blanks every env override so the host environment cannot leak into a test.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SERVER_PORT", "GEOCODING_ENABLED", "GEOCODING_URL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
}

func writeEnvFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(configDir, name+".yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestLoad_ReadsEnvFileFromWorkingDirectory verifies that Load picks
// config/{ENV_NAME}.yaml relative to the working directory.
func TestLoad_ReadsEnvFileFromWorkingDirectory(t *testing.T) {
	clearOverrides(t)
	t.Setenv("ENV_NAME", "staging")

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, "staging", "server:\n  port: \"9100\"\n")
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Errorf("ServerPort = %q, want 9100", cfg.ServerPort)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearOverrides(t)
	t.Setenv("ENV_NAME", "nonexistent")

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want config file not found", err)
	}
}

// TestLoadFile_Defaults verifies the defaults applied to a near-empty file.
func TestLoadFile_Defaults(t *testing.T) {
	clearOverrides(t)
	path := writeEnvFile(t, t.TempDir(), "dev", minimalEnvYAML)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServerPort", cfg.ServerPort, "8000"},
		{"RequestTimeout", cfg.RequestTimeout, 5 * time.Second},
		{"RateLimitRPS", cfg.RateLimitRPS, 100},
		{"RateLimitBurst", cfg.RateLimitBurst, 250},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
		{"OverloadThresholdPct", cfg.OverloadThresholdPct, 80},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 5},
		{"IdleThresholdReqPerMin", cfg.IdleThresholdReqPerMin, 5},
		{"GeocodingEnabled", cfg.GeocodingEnabled, true},
		{"GeocodingURL", cfg.GeocodingURL, "https://nominatim.openstreetmap.org"},
		{"GeocodingTimeout", cfg.GeocodingTimeout, 3 * time.Second},
		{"GeocodingRetryAttempts", cfg.GeocodingRetryAttempts, 2},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 5},
		{"CircuitBreakerSuccessThreshold", cfg.CircuitBreakerSuccessThreshold, 2},
		{"GeocodingEnrichMissingCity", cfg.GeocodingEnrichMissingCity, false},
		{"TestingMode", cfg.TestingMode, false},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFile_FullFile(t *testing.T) {
	clearOverrides(t)
	path := writeEnvFile(t, t.TempDir(), "dev", `
testing_mode: true
server:
  port: "8080"
request:
  timeout: 10s
cors:
  allowed_origins: ["http://localhost:3000", " https://pastcast.example "]
geocoding:
  enabled: true
  url: http://geo.internal
  user_agent: pastcast-test/0.1
  timeout: 2s
  retry_max_attempts: 4
  enrich_missing_city: true
  circuit_breaker:
    failure_threshold: 3
    timeout: 5s
assistant:
  sampler_seed: 42
metrics:
  tracked_cities: [Paris, Mumbai]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !cfg.TestingMode || cfg.ServerPort != "8080" || cfg.RequestTimeout != 10*time.Second {
		t.Errorf("basic fields = %v %q %v", cfg.TestingMode, cfg.ServerPort, cfg.RequestTimeout)
	}
	if got := cfg.CORSAllowedOrigins; len(got) != 2 || got[1] != "https://pastcast.example" {
		t.Errorf("CORSAllowedOrigins = %v", got)
	}
	if cfg.GeocodingURL != "http://geo.internal" || cfg.GeocodingUserAgent != "pastcast-test/0.1" {
		t.Errorf("geocoding = %q %q", cfg.GeocodingURL, cfg.GeocodingUserAgent)
	}
	if cfg.GeocodingRetryAttempts != 4 || !cfg.GeocodingEnrichMissingCity {
		t.Errorf("retry = %d enrich = %v", cfg.GeocodingRetryAttempts, cfg.GeocodingEnrichMissingCity)
	}
	if cfg.CircuitBreakerFailureThreshold != 3 || cfg.CircuitBreakerTimeout != 5*time.Second {
		t.Errorf("breaker = %d %v", cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerTimeout)
	}
	if cfg.SamplerSeed != 42 {
		t.Errorf("SamplerSeed = %d, want 42", cfg.SamplerSeed)
	}
	if len(cfg.TrackedCities) != 2 || cfg.TrackedCities[1] != "Mumbai" {
		t.Errorf("TrackedCities = %v", cfg.TrackedCities)
	}
}

// TestLoadFile_EnvOverrides verifies that env values win over the file.
func TestLoadFile_EnvOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("GEOCODING_ENABLED", "false")
	t.Setenv("GEOCODING_URL", "http://override.local")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	path := writeEnvFile(t, t.TempDir(), "dev", "server:\n  port: \"8000\"\ngeocoding:\n  enabled: true\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if cfg.GeocodingEnabled {
		t.Error("GeocodingEnabled = true, want false")
	}
	if cfg.GeocodingURL != "http://override.local" {
		t.Errorf("GeocodingURL = %q", cfg.GeocodingURL)
	}
	if got := cfg.CORSAllowedOrigins; len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("CORSAllowedOrigins = %v", got)
	}
}

func TestLoadFile_InvalidGeocodingEnabled(t *testing.T) {
	clearOverrides(t)
	t.Setenv("GEOCODING_ENABLED", "maybe")
	path := writeEnvFile(t, t.TempDir(), "dev", minimalEnvYAML)
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "GEOCODING_ENABLED") {
		t.Errorf("LoadFile() error = %v, want GEOCODING_ENABLED error", err)
	}
}

// TestLoadFile_Validation verifies the post-load checks.
func TestLoadFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"non-numeric port", "server:\n  port: abc\n", "server.port"},
		{"port out of range", "server:\n  port: \"70000\"\n", "server.port"},
		{"bad geocoding url", "geocoding:\n  url: ftp://geo\n", "geocoding.url"},
		{"zero geocoding timeout", "geocoding:\n  timeout: 0s\n", "geocoding.timeout"},
		{"max delay below base", "geocoding:\n  retry_base_delay: 2s\n  retry_max_delay: 1s\n", "retry_max_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOverrides(t)
			path := writeEnvFile(t, t.TempDir(), "dev", tt.yaml)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadFile_RequestTimeoutCoversGeocoding verifies that the request
// timeout is raised above the geocoding timeout.
func TestLoadFile_RequestTimeoutCoversGeocoding(t *testing.T) {
	clearOverrides(t)
	path := writeEnvFile(t, t.TempDir(), "dev", "request:\n  timeout: 1s\ngeocoding:\n  timeout: 3s\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.RequestTimeout != 4*time.Second {
		t.Errorf("RequestTimeout = %v, want 4s", cfg.RequestTimeout)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"garbage", time.Second},
		{"-5s", time.Second},
		{"0s", time.Second},
		{" 250ms ", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
