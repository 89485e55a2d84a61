package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"INFRA_BACKEND", "INFRA_API_URL", "INFRA_API_TOKEN",
	"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"REQUEST_TIMEOUT", "REQUESTS_PER_SECOND", "REQUEST_BURST",
	"MAX_CONCURRENT_UNASSIGN", "DUAL_STACK_ENABLED", "CACHE_TTL",
}

// clearEnv unsets every configuration variable for the duration of a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}

	if cfg.Backend != BackendREST {
		t.Errorf("Expected default Backend to be 'rest', got '%s'", cfg.Backend)
	}

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected default RequestTimeout to be 30 seconds, got %v", cfg.RequestTimeout)
	}

	if cfg.MaxConcurrentUnassign != 0 {
		t.Errorf("Expected default MaxConcurrentUnassign to be 0 (unbounded), got %d", cfg.MaxConcurrentUnassign)
	}

	if cfg.DualStackEnabled {
		t.Error("Expected default DualStackEnabled to be false")
	}

	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("Expected default CacheTTL to be 5 minutes, got %v", cfg.CacheTTL)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("INFRA_BACKEND", "ec2")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("REQUEST_TIMEOUT", "10s")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")
	t.Setenv("REQUEST_BURST", "4")
	t.Setenv("MAX_CONCURRENT_UNASSIGN", "3")
	t.Setenv("DUAL_STACK_ENABLED", "true")
	t.Setenv("CACHE_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Backend != BackendEC2 {
		t.Errorf("Expected Backend to be 'ec2', got '%s'", cfg.Backend)
	}
	if cfg.AWSRegion != "us-west-2" {
		t.Errorf("Expected AWSRegion to be 'us-west-2', got '%s'", cfg.AWSRegion)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected RequestTimeout to be 10 seconds, got %v", cfg.RequestTimeout)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("Expected RequestsPerSecond to be 2.5, got %v", cfg.RequestsPerSecond)
	}
	if cfg.RequestBurst != 4 {
		t.Errorf("Expected RequestBurst to be 4, got %d", cfg.RequestBurst)
	}
	if cfg.MaxConcurrentUnassign != 3 {
		t.Errorf("Expected MaxConcurrentUnassign to be 3, got %d", cfg.MaxConcurrentUnassign)
	}
	if !cfg.DualStackEnabled {
		t.Error("Expected DualStackEnabled to be true")
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("Expected CacheTTL to be 1 minute, got %v", cfg.CacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected loaded config to be valid, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"invalid timeout", "REQUEST_TIMEOUT", "soon"},
		{"invalid rate", "REQUESTS_PER_SECOND", "fast"},
		{"invalid burst", "REQUEST_BURST", "1.5"},
		{"invalid concurrency", "MAX_CONCURRENT_UNASSIGN", "many"},
		{"invalid dual stack", "DUAL_STACK_ENABLED", "maybe"},
		{"invalid ttl", "CACHE_TTL", "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Expected error for %s=%s", tt.env, tt.value)
			}
			if !strings.Contains(err.Error(), tt.env) {
				t.Errorf("Expected error to name %s, got %v", tt.env, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid rest",
			modify: func(c *Config) { c.APIToken = "token" },
		},
		{
			name:    "rest without token",
			modify:  func(c *Config) {},
			wantErr: "INFRA_API_TOKEN",
		},
		{
			name: "ec2 without region",
			modify: func(c *Config) {
				c.Backend = BackendEC2
			},
			wantErr: "AWS_REGION",
		},
		{
			name: "ec2 with half credentials",
			modify: func(c *Config) {
				c.Backend = BackendEC2
				c.AWSRegion = "us-east-1"
				c.AWSAccessKeyID = "AKIA"
			},
			wantErr: "must be set together",
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Backend = "gcp" },
			wantErr: "unknown backend",
		},
		{
			name: "zero rate",
			modify: func(c *Config) {
				c.APIToken = "token"
				c.RequestsPerSecond = 0
			},
			wantErr: "REQUESTS_PER_SECOND",
		},
		{
			name: "negative concurrency",
			modify: func(c *Config) {
				c.APIToken = "token"
				c.MaxConcurrentUnassign = -1
			},
			wantErr: "MAX_CONCURRENT_UNASSIGN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := "INFRA_API_TOKEN=from-file\nINFRA_API_URL=https://example.test/v4\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	// Already-set variables win over the file
	t.Setenv("INFRA_API_URL", "https://override.test/v4")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("Failed to load env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("INFRA_API_TOKEN") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIToken != "from-file" {
		t.Errorf("Expected APIToken from file, got '%s'", cfg.APIToken)
	}
	if cfg.APIURL != "https://override.test/v4" {
		t.Errorf("Expected APIURL from environment, got '%s'", cfg.APIURL)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Expected error for missing env file")
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("Expected empty path to be ignored, got %v", err)
	}
}
